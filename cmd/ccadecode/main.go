// Command ccadecode decodes CCA power telemetry blocks given as hex, one
// per argument or one per stdin line, and prints the raw fields together
// with the scaled readings.
package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/service"
	"github.com/berfenger/tigo2mqtt/pkg/cca"

	"gopkg.in/yaml.v3"
)

type decoded struct {
	Hex       string           `json:"hex" yaml:"hex"`
	Verdict   string           `json:"verdict" yaml:"verdict"`
	Telemetry *cca.Telemetry   `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	Readings  *domain.Readings `json:"readings,omitempty" yaml:"readings,omitempty"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
}

func main() {
	asYAML := flag.Bool("yaml", false, "print YAML instead of JSON")
	header := flag.String("header", hex.EncodeToString(cca.DefaultHeader), "expected hex header of every block, empty to accept any")
	flag.Parse()

	validator := cca.DefaultValidator()
	h, err := cca.ParseHex(*header)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid header: %v\n", err)
		os.Exit(2)
	}
	validator.Header = h

	var inputs []string
	if flag.NArg() > 0 {
		inputs = flag.Args()
	} else {
		inputs, err = readLines(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			os.Exit(1)
		}
	}

	deriver := service.NewMetricsDeriver(service.DefaultScaling(), 0)
	out := make([]decoded, 0, len(inputs))
	failed := false
	for _, in := range inputs {
		d := decodeOne(in, validator, deriver)
		if d.Error != "" {
			failed = true
		}
		out = append(out, d)
	}

	if err := write(os.Stdout, out, *asYAML); err != nil {
		fmt.Fprintf(os.Stderr, "write error: %v\n", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

func decodeOne(in string, validator cca.Validator, deriver service.MetricsDeriver) decoded {
	d := decoded{Hex: in}
	b, err := cca.ParseHex(in)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	res := validator.Validate(b)
	d.Verdict = res.Verdict.String()
	if res.Verdict != cca.Valid {
		d.Error = res.Err.Error()
		return d
	}
	t := res.Telemetry
	readings, _ := deriver.Derive(t, domain.DeviceProfile{})
	d.Telemetry = &t
	d.Readings = &readings
	return d
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func write(w io.Writer, out []decoded, asYAML bool) error {
	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
