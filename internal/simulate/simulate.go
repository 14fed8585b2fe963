package simulate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/TheCacophonyProject/tc2-rate-controller/internal/logging"
	ratecontroller "github.com/TheCacophonyProject/tc2-rate-controller/internal/rate-controller"
	"github.com/TheCacophonyProject/tc2-rate-controller/ratecontrol"
	arg "github.com/alexflint/go-arg"
)

var version = "No version provided"

var log = logging.NewLogger("info")

var header = []string{"millivolts", "mode", "interval", "dc", "dc_smooth", "dc_real", "params", "resets", "fault"}

type Args struct {
	Input     string `arg:"positional,required" help:"CSV file of battery readings, millivolts in the last column"`
	Output    string `arg:"-o,--output" help:"write decisions to this file instead of stdout"`
	Raw       bool   `arg:"--raw" help:"rows hold 11 raw ADC counts instead of millivolts"`
	ConfigDir string `arg:"-c,--config" help:"configuration folder to take the controller settings from"`
	logging.LogArgs
}

func (Args) Version() string {
	return version
}

func procArgs(input []string) (Args, error) {
	args := Args{}

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func controllerConfig(configDir string) (ratecontrol.Config, error) {
	if configDir == "" {
		return ratecontrol.DefaultConfig(), nil
	}
	conf, err := ratecontroller.ParseConfig(configDir)
	if err != nil {
		return ratecontrol.Config{}, err
	}
	return conf.Controller()
}

// Run replays recorded battery readings through a fresh controller and
// writes one CSV row per decision.
func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}

	log = logging.NewLogger(args.LogLevel)

	rc, err := controllerConfig(args.ConfigDir)
	if err != nil {
		return err
	}

	in, err := os.Open(args.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	out := os.Stdout
	if args.Output != "" {
		out, err = os.Create(args.Output)
		if err != nil {
			return err
		}
		defer out.Close()
	}

	s, err := simulate(in, out, rc, args.Raw)
	if err != nil {
		return err
	}
	log.Infof("Simulated %d readings, %d normal mode ticks, %d faults", s.readings, s.ticks, s.faults)
	return nil
}

type summary struct {
	readings int
	ticks    int
	faults   int
}

func simulate(r io.Reader, w io.Writer, rc ratecontrol.Config, raw bool) (summary, error) {
	s := summary{}
	controller, err := ratecontrol.NewController(rc, ratecontrol.WithFaultHandler(func(f ratecontrol.Fault) {
		s.faults++
		log.Debug(f.Error())
	}))
	if err != nil {
		return s, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return s, err
	}

	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s, err
		}

		mv, err := parseRecord(record, raw)
		if err != nil {
			// First line may be a header.
			if line == 1 {
				continue
			}
			return s, fmt.Errorf("line %d: %w", line, err)
		}

		d, err := controller.Decide(mv)
		if err != nil {
			return s, fmt.Errorf("line %d: %w", line, err)
		}
		s.readings++
		if d.Result != nil {
			s.ticks++
		}
		if err := writer.Write(formatDecision(mv, d)); err != nil {
			return s, err
		}
	}

	writer.Flush()
	return s, writer.Error()
}

func parseUint16(field string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(field), 10, 16)
	return uint16(v), err
}

func parseRecord(record []string, raw bool) (uint16, error) {
	if !raw {
		return parseUint16(record[len(record)-1])
	}
	if len(record) < ratecontrol.SamplesPerEstimate {
		return 0, fmt.Errorf("expected %d raw samples, got %d", ratecontrol.SamplesPerEstimate, len(record))
	}
	var batch ratecontrol.RawSampleBatch
	fields := record[len(record)-ratecontrol.SamplesPerEstimate:]
	for i, field := range fields {
		v, err := parseUint16(field)
		if err != nil {
			return 0, err
		}
		batch[i] = v
	}
	return ratecontrol.MedianMillivolts(batch), nil
}

func formatDecision(mv uint16, d ratecontrol.Decision) []string {
	row := []string{
		strconv.Itoa(int(mv)),
		d.Mode.String(),
		strconv.Itoa(int(d.Interval)),
		"", "", "", "", "", "false",
	}
	if r := d.Result; r != nil {
		row[3] = strconv.Itoa(int(r.DC))
		row[4] = strconv.Itoa(int(r.DCSmooth))
		row[5] = strconv.Itoa(int(r.DCReal))
		row[6] = r.Params.String()
		row[7] = r.Resets.String()
		row[8] = strconv.FormatBool(r.Fault != nil)
	}
	return row
}
