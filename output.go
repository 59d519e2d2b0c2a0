package retrievedevices

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// OutputFormat selects the layout of the devices file.
type OutputFormat string

const (
	// FormatLegacy writes comma-joined objects without an enclosing array,
	// the layout downstream certificate steps already parse.
	FormatLegacy OutputFormat = "legacy"
	// FormatArray wraps the same objects in a JSON array.
	FormatArray OutputFormat = "array"
)

// ParseOutputFormat accepts "", "legacy" and "array".
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatLegacy:
		return FormatLegacy, nil
	case FormatArray:
		return FormatArray, nil
	default:
		return "", errors.Errorf("unknown output format %q (want legacy or array)", raw)
	}
}

// EmitDevices prints one console line per device and writes the devices
// file at path, replacing any previous content. It returns the number of
// bytes written to the file.
func EmitDevices(path string, devices []Device, format OutputFormat, console io.Writer) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	n, err := WriteDevices(w, devices, format, console)
	if err != nil {
		return n, errors.Wrapf(err, "write %s", path)
	}
	if err := w.Flush(); err != nil {
		return n, errors.Wrapf(err, "flush %s", path)
	}
	if err := f.Close(); err != nil {
		return n, errors.Wrapf(err, "close %s", path)
	}
	return n, nil
}

// WriteDevices renders devices to out. Numbers are 1-based positions and a
// comma follows every object except the last. console may be nil.
func WriteDevices(out io.Writer, devices []Device, format OutputFormat, console io.Writer) (int, error) {
	var buf bytes.Buffer
	if format == FormatArray {
		buf.WriteByte('[')
	}
	for i, d := range devices {
		if console != nil {
			fmt.Fprintf(console, "UDID: %s | NAME: %s\n", d.UDID, d.Name)
		}
		buf.WriteString(`{"name":`)
		buf.WriteString(quoteJSON(d.Name))
		buf.WriteString(`, "udid":`)
		buf.WriteString(quoteJSON(d.UDID))
		buf.WriteString(`, "number":"`)
		buf.WriteString(strconv.Itoa(i + 1))
		buf.WriteString(`"}`)
		if i < len(devices)-1 {
			buf.WriteByte(',')
		}
	}
	if format == FormatArray {
		buf.WriteByte(']')
	}
	return out.Write(buf.Bytes())
}

// quoteJSON returns s as a JSON string literal. Plain names come out
// unchanged; quotes and control characters are escaped.
func quoteJSON(s string) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
