package ocr

import (
	"bufio"
	"os"
	"strings"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// LoadKeys reads a character dictionary, one symbol per line. Index 0 is
// the CTC blank and a trailing space symbol is appended.
func LoadKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeOCRInitFailed, "open keys %s", path)
	}
	defer f.Close()

	keys := []string{""}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k := strings.TrimRight(sc.Text(), "\r")
		if k == "" {
			continue
		}
		keys = append(keys, k)
	}
	if err := sc.Err(); err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeOCRInitFailed, "read keys %s", path)
	}
	if len(keys) == 1 {
		return nil, apperr.Newf(apperr.CodeOCRInitFailed, "keys %s is empty", path)
	}
	return append(keys, " "), nil
}
