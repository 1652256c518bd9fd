// Command healthcheck probes a running ExoScan instance. It exits non-zero
// when the service is unreachable, or degraded with --strict.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"ExoScan/internal/domain/models"
	xhttp "ExoScan/pkg/http"
)

type options struct {
	url         string
	timeout     time.Duration
	strict      bool
	metrics     bool
	metricsPath string
}

type healthEnvelope struct {
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Data    models.HealthReport `json:"data"`
}

var errDegraded = errors.New("service degraded")

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "healthcheck",
		Short:         "Probe a running ExoScan service",
		Long:          `healthcheck calls /api/health and optionally summarises the Prometheus metrics of the service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return check(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8080", "service base URL")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 3*time.Second, "overall probe timeout")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail when the service reports degraded")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "also scrape and summarise Prometheus metrics")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics-path", "/metrics", "Prometheus scrape path")
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		os.Exit(1)
	}
}

func check(ctx context.Context, opts *options, out io.Writer) error {
	client := xhttp.NewClient(xhttp.WithBaseURL(opts.url), xhttp.WithTimeout(opts.timeout))

	var env healthEnvelope
	if err := client.SendAndParse(ctx, &xhttp.RequestOptions{Method: http.MethodGet, Path: "/api/health"}, &env); err != nil {
		return err
	}

	report := env.Data
	fmt.Fprintf(out, "status=%s backend=%s model=%t worker=%t slots=%d\n",
		report.Status, report.Backend, report.Model.Present, report.Worker.Present, report.WorkerSlots)

	if opts.metrics {
		mfs, err := scrape(ctx, client, opts.metricsPath)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		fmt.Fprintf(out, "evaluations=%.0f errors=%.0f candidates=%.0f workers_in_flight=%.0f\n",
			sumFamily(mfs["exoscan_evaluations_total"]),
			sumFamily(mfs["exoscan_errors_total"]),
			sumFamily(mfs["exoscan_candidates_total"]),
			sumFamily(mfs["exoscan_workers_in_flight"]),
		)
	}

	if opts.strict && report.Status != "ok" {
		return fmt.Errorf("%w: %s", errDegraded, report.Message)
	}
	return nil
}

func scrape(ctx context.Context, client *xhttp.Client, path string) (map[string]*dto.MetricFamily, error) {
	resp, err := client.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  http.MethodGet,
		Path:    path,
		Headers: map[string]string{"Accept": string(expfmt.FmtText)},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics keeps a partial result when the parser stops on a trailing
// malformed line.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds every counter, gauge and untyped sample of mf. A missing
// family sums to 0.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
