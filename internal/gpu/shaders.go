package gpu

// LocalSize is the compute work-group edge; dispatch is ceil(w/16)×ceil(h/16).
const LocalSize = 16

const regularShader = `#version 310 es
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform highp sampler2D uInput;
layout(rgba8, binding = 0) writeonly uniform highp image2D uOutput;
uniform highp vec2 uInputSize;
uniform highp float uResizeFactor;
uniform highp ivec2 uOutputSize;

void main() {
    ivec2 pos = ivec2(gl_GlobalInvocationID.xy);
    if (pos.x >= uOutputSize.x || pos.y >= uOutputSize.y) return;
    vec2 uv = (vec2(pos) + 0.5) * uResizeFactor / uInputSize;
    vec3 rgb = texture(uInput, uv).rgb;
    imageStore(uOutput, pos, vec4(rgb, 1.0));
}
`

const externalShader = `#version 310 es
#extension GL_OES_EGL_image_external_essl3 : require
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform highp samplerExternalOES uInput;
layout(rgba8, binding = 0) writeonly uniform highp image2D uOutput;
uniform highp mat4 uTransform;
uniform highp ivec2 uOutputSize;

void main() {
    ivec2 pos = ivec2(gl_GlobalInvocationID.xy);
    if (pos.x >= uOutputSize.x || pos.y >= uOutputSize.y) return;
    vec2 uv = (vec2(pos) + 0.5) / vec2(uOutputSize);
    vec2 tc = (uTransform * vec4(uv, 0.0, 1.0)).xy;
    imageStore(uOutput, pos, vec4(texture(uInput, tc).rgb, 1.0));
}
`

const roiShader = `#version 310 es
#extension GL_OES_EGL_image_external_essl3 : require
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform highp samplerExternalOES uInput;
layout(rgba8, binding = 0) writeonly uniform highp image2D uOutput;
uniform highp mat4 uTransform;
uniform highp ivec2 uOutputSize;
uniform highp vec4 uROI;       // x, y, w, h normalized
uniform highp vec4 uContent;   // offset.xy, scale.xy in output uv

void main() {
    ivec2 pos = ivec2(gl_GlobalInvocationID.xy);
    if (pos.x >= uOutputSize.x || pos.y >= uOutputSize.y) return;
    vec2 uv = (vec2(pos) + 0.5) / vec2(uOutputSize);
    vec2 local = (uv - uContent.xy) / uContent.zw;
    if (any(lessThan(local, vec2(0.0))) || any(greaterThan(local, vec2(1.0)))) {
        imageStore(uOutput, pos, vec4(0.5, 0.5, 0.5, 1.0));
        return;
    }
    vec2 src = uROI.xy + local * uROI.zw;
    vec2 tc = (uTransform * vec4(src, 0.0, 1.0)).xy;
    imageStore(uOutput, pos, vec4(texture(uInput, tc).rgb, 1.0));
}
`
