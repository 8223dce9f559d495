// Command loadtest drives a proxy with concurrent status pings or offline logins.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/SkynetNext/mc-proxy/internal/auth"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
)

var (
	addr        = pflag.String("addr", "localhost:25565", "Proxy address")
	mode        = pflag.String("mode", "status", "Workload: status (server list pings) or login (offline logins)")
	connections = pflag.Int("connections", 100, "Number of concurrent workers")
	duration    = pflag.Duration("duration", 30*time.Second, "Test duration")
	perWorker   = pflag.Float64("rate", 5.0, "Operations per second per worker")
	protocolVer = pflag.Int32("protocol", 773, "Protocol version sent in the handshake")
	timeout     = pflag.Duration("timeout", 5*time.Second, "Per operation timeout")
	verbose     = pflag.Bool("verbose", false, "Verbose output")
)

type Stats struct {
	Operations   atomic.Int64
	Succeeded    atomic.Int64
	Failed       atomic.Int64
	ConnErrors   atomic.Int64
	ProtoErrors  atomic.Int64
	TotalLatency atomic.Int64
	MinLatency   atomic.Int64
	MaxLatency   atomic.Int64
}

var stats Stats

func main() {
	pflag.Parse()

	fmt.Printf("=== Proxy Load Test ===\n")
	fmt.Printf("Target: %s\n", *addr)
	fmt.Printf("Mode: %s\n", *mode)
	fmt.Printf("Workers: %d\n", *connections)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Rate: %.2f op/s per worker\n\n", *perWorker)

	var op func(ctx context.Context, worker, n int) error
	switch *mode {
	case "status":
		op = statusPing
	case "login":
		op = offlineLogin
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	statsDone := make(chan struct{})
	go reportStats(ctx, statsDone)

	var wg sync.WaitGroup
	startTime := time.Now()
	for i := 0; i < *connections; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			runWorker(ctx, worker, op)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	<-statsDone
	printFinalReport(elapsed)
}

func runWorker(ctx context.Context, worker int, op func(context.Context, int, int) error) {
	limiter := rate.NewLimiter(rate.Limit(*perWorker), 1)
	for n := 0; ; n++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		start := time.Now()
		stats.Operations.Add(1)
		if err := op(ctx, worker, n); err != nil {
			if ctx.Err() != nil {
				return
			}
			stats.Failed.Add(1)
			if *verbose {
				fmt.Printf("worker %d: %v\n", worker, err)
			}
			continue
		}
		stats.Succeeded.Add(1)
		recordLatency(time.Since(start))
	}
}

func dial() (net.Conn, *protocol.Queue, error) {
	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		stats.ConnErrors.Add(1)
		return nil, nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(*timeout))
	return conn, protocol.NewQueue(conn, 2<<20), nil
}

func send(conn net.Conn, p protocol.Packet) error {
	frame, err := protocol.Marshal(p)
	if err != nil {
		return err
	}
	_, err = conn.Write(frame)
	return err
}

func handshake(next int32) *packet.Handshake {
	host, _, _ := net.SplitHostPort(*addr)
	return &packet.Handshake{ProtocolVersion: *protocolVer, ServerHost: host, ServerPort: 25565, NextState: next}
}

// statusPing performs one server list ping: status request, response, ping, pong
func statusPing(ctx context.Context, _, _ int) error {
	conn, q, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := send(conn, handshake(packet.NextStateStatus)); err != nil {
		return err
	}
	if err := send(conn, &packet.Empty{PacketID: packet.IDStatusRequest}); err != nil {
		return err
	}
	var resp packet.StatusResponse
	if err := q.ExpectPacket(ctx, &resp); err != nil {
		stats.ProtoErrors.Add(1)
		return fmt.Errorf("status response: %w", err)
	}

	sent := time.Now().UnixMilli()
	if err := send(conn, &packet.Ping{Time: sent}); err != nil {
		return err
	}
	var pong packet.Ping
	if err := q.ExpectPacket(ctx, &pong); err != nil {
		stats.ProtoErrors.Add(1)
		return fmt.Errorf("pong: %w", err)
	}
	if pong.Time != sent {
		stats.ProtoErrors.Add(1)
		return fmt.Errorf("pong carries %d, sent %d", pong.Time, sent)
	}
	return nil
}

// offlineLogin logs a bot in up to login success. Needs an offline-mode proxy.
func offlineLogin(ctx context.Context, worker, n int) error {
	conn, q, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	name := fmt.Sprintf("bot%d_%d", worker, n%1000)
	if len(name) > 16 {
		name = name[:16]
	}
	if err := send(conn, handshake(packet.NextStateLogin)); err != nil {
		return err
	}
	if err := send(conn, &packet.LoginStart{Username: name, UUID: auth.OfflineUUID(name)}); err != nil {
		return err
	}

	for {
		f, err := q.Next(ctx)
		if err != nil {
			stats.ProtoErrors.Add(1)
			return fmt.Errorf("login: %w", err)
		}
		switch f.ID {
		case packet.IDLoginSuccess:
			return send(conn, &packet.Empty{PacketID: packet.IDLoginAcknowledged})
		case packet.IDLoginDisconnect:
			var d packet.LoginDisconnect
			_ = protocol.Unmarshal(f, &d)
			return fmt.Errorf("disconnected: %s", d.Reason)
		case packet.IDEncryptionRequest:
			return fmt.Errorf("proxy is in online mode")
		}
	}
}

func recordLatency(latency time.Duration) {
	v := int64(latency)
	stats.TotalLatency.Add(v)
	for {
		old := stats.MinLatency.Load()
		if old != 0 && v >= old || stats.MinLatency.CompareAndSwap(old, v) {
			break
		}
	}
	for {
		old := stats.MaxLatency.Load()
		if v <= old || stats.MaxLatency.CompareAndSwap(old, v) {
			break
		}
	}
}

func reportStats(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("\r[Stats] Ops: %d (ok: %d, failed: %d) | Conn errors: %d",
				stats.Operations.Load(), stats.Succeeded.Load(), stats.Failed.Load(), stats.ConnErrors.Load())
		}
	}
}

func printFinalReport(elapsed time.Duration) {
	fmt.Printf("\n\n=== Final Report ===\n")
	fmt.Printf("Duration: %v\n", elapsed)

	total := stats.Operations.Load()
	ok := stats.Succeeded.Load()
	failed := stats.Failed.Load()

	fmt.Printf("\n--- Operations ---\n")
	fmt.Printf("Total: %d\n", total)
	if total > 0 {
		fmt.Printf("Successful: %d (%.2f%%)\n", ok, float64(ok)/float64(total)*100)
		fmt.Printf("Failed: %d (%.2f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("Throughput: %.2f op/s\n", float64(ok)/elapsed.Seconds())

	fmt.Printf("\n--- Latency ---\n")
	if ok > 0 {
		fmt.Printf("Min: %v\n", time.Duration(stats.MinLatency.Load()))
		fmt.Printf("Max: %v\n", time.Duration(stats.MaxLatency.Load()))
		fmt.Printf("Avg: %v\n", time.Duration(stats.TotalLatency.Load()/ok))
	}

	fmt.Printf("\n--- Errors ---\n")
	fmt.Printf("Connection Errors: %d\n", stats.ConnErrors.Load())
	fmt.Printf("Protocol Errors: %d\n", stats.ProtoErrors.Load())

	if total == 0 || failed > total/10 {
		fmt.Printf("\nTest failed: too many errors\n")
		os.Exit(1)
	}
	fmt.Printf("\nTest completed successfully\n")
}
