package perception

// DefaultMaxHashDistance is the pHash Hamming distance at or below which two
// region crops count as the same text.
const DefaultMaxHashDistance = 5
