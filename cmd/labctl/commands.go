package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/ai"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/config"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/logging"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

// errDiagnosisFailed is returned after the failure message has been printed.
var errDiagnosisFailed = errors.New("failed to get diagnosis")

func newRisksCommand() *cli.Command {
	return &cli.Command{
		Name:   "risks",
		Usage:  "Evaluate the rule set against a lab report",
		Flags:  reportFlags(),
		Action: runRisks,
	}
}

func newAnalyzeCommand() *cli.Command {
	flags := append(reportFlags(),
		&cli.StringFlag{
			Name:    "api-key",
			Sources: cli.EnvVars("GROQ_API_KEY"),
			Usage:   "Groq API key",
		},
		&cli.StringFlag{
			Name:    "base-url",
			Sources: cli.EnvVars("GROQ_BASE_URL"),
			Value:   ai.DefaultBaseURL,
			Usage:   "OpenAI-compatible API root",
		},
		&cli.StringFlag{
			Name:    "model",
			Sources: cli.EnvVars("GROQ_MODEL"),
			Value:   ai.DefaultModel,
			Usage:   "Model identifier",
		},
		&cli.FloatFlag{
			Name:    "temperature",
			Sources: cli.EnvVars("GROQ_TEMPERATURE"),
			Value:   ai.DefaultTemperature,
			Usage:   "Sampling temperature",
		},
		&cli.StringFlag{
			Name:    "timeout",
			Sources: cli.EnvVars("GROQ_TIMEOUT"),
			Value:   ai.DefaultTimeout.String(),
			Usage:   "Timeout for the model call, in seconds or as a duration like 90s",
		},
	)

	return &cli.Command{
		Name:   "analyze",
		Usage:  "Evaluate the rule set and generate a diagnosis report",
		Flags:  flags,
		Action: runAnalyze,
	}
}

// ─── FLAGS ───────────────────────────────────────────────────────────────────

// flagName turns a field key such as uric_acid into uric-acid.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// reportFlags returns --input plus one string flag per catalog field.
func reportFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "YAML or JSON file of lab values keyed by field; flags override it",
		},
	}
	for _, f := range labs.Fields() {
		usage := f.Label
		if f.Unit != "" {
			usage += " (" + f.Unit + ")"
		}
		if len(f.Options) > 0 {
			usage += ": " + strings.Join(f.Options[1:], " or ")
		}
		if f.Hint != "" {
			usage += ", " + f.Hint
		}
		flags = append(flags, &cli.StringFlag{Name: flagName(f.Key), Usage: usage})
	}
	return flags
}

// readReport merges the --input file and the per-field flags into a Report.
func readReport(cmd *cli.Command) (labs.Report, error) {
	values := map[string]string{}

	if path := cmd.String("input"); path != "" {
		fromFile, err := readValuesFile(path)
		if err != nil {
			return labs.Report{}, err
		}
		values = fromFile
	}

	for _, f := range labs.Fields() {
		if name := flagName(f.Key); cmd.IsSet(name) {
			values[f.Key] = cmd.String(name)
		}
	}
	return labs.Parse(values), nil
}

// readValuesFile decodes a flat mapping of field key to scalar. JSON is
// accepted because it is valid YAML.
func readValuesFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	values := make(map[string]string, len(doc))
	var errs []error
	for key, v := range doc {
		if _, ok := labs.Lookup(key); !ok {
			errs = append(errs, fmt.Errorf("%s: unknown lab field %q", path, key))
			continue
		}
		switch v := v.(type) {
		case nil:
		case string:
			values[key] = v
		case int, int64, uint64:
			values[key] = fmt.Sprint(v)
		case float64:
			values[key] = strconv.FormatFloat(v, 'g', -1, 64)
		default:
			errs = append(errs, fmt.Errorf("%s: %s must be a string or number", path, key))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return values, nil
}

// ─── ACTIONS ─────────────────────────────────────────────────────────────────

type result struct {
	Report    map[string]string `json:"report"`
	Risks     []string          `json:"risks"`
	Flags     []scoring.Flag    `json:"flags"`
	Narrative string            `json:"narrative,omitempty"`
	Model     string            `json:"model,omitempty"`
}

func evaluate(cmd *cli.Command) (labs.Report, result, error) {
	evaluator, err := scoring.Load(cmd.String("rules"))
	if err != nil {
		return labs.Report{}, result{}, fmt.Errorf("rules: %w", err)
	}
	report, err := readReport(cmd)
	if err != nil {
		return labs.Report{}, result{}, err
	}

	flags := evaluator.Evaluate(report)
	res := result{
		Report: map[string]string{},
		Risks:  scoring.Messages(flags),
		Flags:  flags,
	}
	for _, v := range report.Values() {
		if v.Present {
			res.Report[v.Field.Key] = v.Display
		}
	}
	return report, res, nil
}

func runRisks(_ context.Context, cmd *cli.Command) error {
	_, res, err := evaluate(cmd)
	if err != nil {
		return err
	}
	return output(cmd, res)
}

func runAnalyze(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd)

	report, res, err := evaluate(cmd)
	if err != nil {
		return err
	}

	timeout, err := timeoutFlag(cmd)
	if err != nil {
		return err
	}

	narrator, err := ai.NewGroqClient(ai.GroqConfig{
		APIKey:      cmd.String("api-key"),
		BaseURL:     cmd.String("base-url"),
		Model:       cmd.String("model"),
		Temperature: cmd.Float("temperature"),
		Timeout:     timeout,
	})
	if err != nil {
		return err
	}

	logger.Debug("requesting narrative", "model", narrator.Model(), "fields", report.PresentCount(), "flags", len(res.Flags))

	narrative, err := narrator.GenerateNarrative(ctx, report, res.Flags)
	if err != nil {
		logger.Warn("narrative failed", "status", ai.StatusCode(err), "error", err)
		fmt.Fprintln(cmd.Root().ErrWriter, "Failed to get diagnosis.")
		return errDiagnosisFailed
	}

	res.Narrative = narrative.Text
	res.Model = narrative.Model
	return output(cmd, res)
}

// timeoutFlag reads --timeout the way the server reads GROQ_TIMEOUT. An empty
// value falls back to the default.
func timeoutFlag(cmd *cli.Command) (time.Duration, error) {
	raw := cmd.String("timeout")
	if strings.TrimSpace(raw) == "" {
		return ai.DefaultTimeout, nil
	}
	d, err := config.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout: must be positive, got %s", d)
	}
	return d, nil
}

// ─── OUTPUT ──────────────────────────────────────────────────────────────────

func output(cmd *cli.Command, res result) error {
	w := cmd.Root().Writer

	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	writeText(w, res)
	return nil
}

func writeText(w io.Writer, res result) {
	fmt.Fprintln(w, "Risk Flags")
	if len(res.Risks) == 0 {
		fmt.Fprintln(w, "No risk flags.")
	}
	for _, msg := range res.Risks {
		fmt.Fprintln(w, "- "+msg)
	}

	if res.Narrative != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Diagnosis Report")
		fmt.Fprintln(w)
		fmt.Fprintln(w, res.Narrative)
	}
}

func newLogger(cmd *cli.Command) *slog.Logger {
	if cmd.Bool("verbose") {
		return logging.New("development", cmd.Root().ErrWriter)
	}
	return logging.Discard()
}
