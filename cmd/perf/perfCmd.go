package perf

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/unixhttp/cmd/util"
	"github.com/ValentinKolb/unixhttp/lib/address"
	"github.com/ValentinKolb/unixhttp/rpc/client"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/ValentinKolb/unixhttp/rpc/transport/base"
	vmetrics "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// result summarizes one perf run
type result struct {
	Requests   int64
	Failures   int64
	Non2xx     int64
	Elapsed    time.Duration
	Min        time.Duration
	Mean       time.Duration
	P50        time.Duration
	P90        time.Duration
	P99        time.Duration
	Max        time.Duration
	Throughput float64
	Pool       base.Stats
}

func run(cmd *cobra.Command, args []string) error {
	target, err := util.ParseTargetArgs(args)
	if err != nil {
		return err
	}

	fmt.Println("Performance testing tool for HTTP services on unix sockets")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(clientConfig.String())
	fmt.Printf("Target:   %s %s\n", perfMethod, target)
	fmt.Printf("Workers:  %d\n", perfWorkers)
	fmt.Printf("Duration: %s\n", perfDuration)
	fmt.Println()

	fmt.Println("starting test...")

	c := client.NewClient(*clientConfig)
	defer c.Close()

	res, err := benchmark(cmd.Context(), c, target)
	if err != nil {
		return err
	}
	printResult(res)

	if viper.GetBool("metrics") {
		fmt.Println()
		vmetrics.WritePrometheus(os.Stdout, false)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, target, res, clientConfig); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// benchmark runs perfWorkers workers against target until perfDuration has passed
func benchmark(ctx context.Context, c *client.Client, target address.Target) (result, error) {
	// validate the request once so a bad method fails fast
	if _, err := common.NewRequest(perfMethod, target, nil, nil); err != nil {
		return result{}, err
	}

	timer := gometrics.NewTimer()
	defer timer.Stop()
	failures := gometrics.NewCounter()
	non2xx := gometrics.NewCounter()

	payload := make([]byte, perfBodySize)

	ctx, cancel := context.WithTimeout(ctx, perfDuration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < perfWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				var body io.Reader
				if len(payload) > 0 {
					body = bytes.NewReader(payload)
				}
				req, err := common.NewRequest(perfMethod, target, nil, body)
				if err != nil {
					failures.Inc(1)
					return
				}

				begin := time.Now()
				resp, err := c.Execute(ctx, req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					util.Logger.Warningf("(perf) - request failed: %v", err)
					failures.Inc(1)
					continue
				}
				_, err = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					util.Logger.Warningf("(perf) - reading response failed: %v", err)
					failures.Inc(1)
					continue
				}

				timer.UpdateSince(begin)
				if !resp.IsSuccess() {
					non2xx.Inc(1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	snapshot := timer.Snapshot()
	percentiles := snapshot.Percentiles([]float64{0.5, 0.9, 0.99})

	res := result{
		Requests: snapshot.Count(),
		Failures: failures.Count(),
		Non2xx:   non2xx.Count(),
		Elapsed:  elapsed,
		Min:      time.Duration(snapshot.Min()),
		Mean:     time.Duration(snapshot.Mean()),
		P50:      time.Duration(percentiles[0]),
		P90:      time.Duration(percentiles[1]),
		P99:      time.Duration(percentiles[2]),
		Max:      time.Duration(snapshot.Max()),
		Pool:     c.Stats(),
	}
	if elapsed > 0 {
		res.Throughput = float64(res.Requests) / elapsed.Seconds()
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printResult prints the result of a perf run in a formatted way
func printResult(res result) {
	fmt.Println()
	if res.Requests == 0 {
		fmt.Printf("%-20sno successful requests (%d failures)\n", "requests", res.Failures)
		return
	}

	fmt.Printf("%-20s%d (%d failures, %d non-2xx)\n", "requests", res.Requests, res.Failures, res.Non2xx)
	fmt.Printf("%-20s%.0f req/sec\n", "throughput", res.Throughput)
	fmt.Printf("%-20s%s\n", "latency min", res.Min)
	fmt.Printf("%-20s%s\n", "latency mean", res.Mean)
	fmt.Printf("%-20s%s\n", "latency p50", res.P50)
	fmt.Printf("%-20s%s\n", "latency p90", res.P90)
	fmt.Printf("%-20s%s\n", "latency p99", res.P99)
	fmt.Printf("%-20s%s\n", "latency max", res.Max)

	fmt.Println()
	fmt.Printf("%-20s%d (%d errors)\n", "pool dials", res.Pool.Dials, res.Pool.DialErrors)
	fmt.Printf("%-20s%d\n", "pool reuses", res.Pool.Reuses)
	fmt.Printf("%-20s%d\n", "pool discards", res.Pool.Discards)
	fmt.Printf("%-20s%d (%d timeouts)\n", "pool waits", res.Pool.Waits, res.Pool.WaitTimeouts)
}

// writeResultsToCSV writes the result of a perf run to a CSV file
func writeResultsToCSV(csvPath string, target address.Target, res result, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Target", "Method", "Workers", "DurationSec", "BodySize",
		"Requests", "Failures", "Non2xx", "ReqPerSec",
		"MinNs", "MeanNs", "P50Ns", "P90Ns", "P99Ns", "MaxNs",
		"Dials", "Reuses", "Discards", "Waits",
		"MaxConnsPerSocket", "MaxIdlePerSocket", "RequestTimeoutSec",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	row := []string{
		target.String(),
		perfMethod,
		strconv.Itoa(perfWorkers),
		strconv.FormatFloat(perfDuration.Seconds(), 'f', -1, 64),
		strconv.Itoa(perfBodySize),
		strconv.FormatInt(res.Requests, 10),
		strconv.FormatInt(res.Failures, 10),
		strconv.FormatInt(res.Non2xx, 10),
		fmt.Sprintf("%.0f", res.Throughput),
		strconv.FormatInt(int64(res.Min), 10),
		strconv.FormatInt(int64(res.Mean), 10),
		strconv.FormatInt(int64(res.P50), 10),
		strconv.FormatInt(int64(res.P90), 10),
		strconv.FormatInt(int64(res.P99), 10),
		strconv.FormatInt(int64(res.Max), 10),
		strconv.FormatUint(res.Pool.Dials, 10),
		strconv.FormatUint(res.Pool.Reuses, 10),
		strconv.FormatUint(res.Pool.Discards, 10),
		strconv.FormatUint(res.Pool.Waits, 10),
		strconv.Itoa(config.MaxConnsPerSocket),
		strconv.Itoa(config.MaxIdlePerSocket),
		strconv.FormatFloat(config.RequestTimeout.Seconds(), 'f', -1, 64),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write result row: %v", err)
	}

	return nil
}
