// Command svx-poke sends one control command to a running stream server, either over the
// TCP control port or through the Redis control channel.
//
//	svx-poke status 1234
//	svx-poke -redis redis://localhost:6379 history_full
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/karelxkk/svx-dashboard/internal/adapter/redis"
	"github.com/karelxkk/svx-dashboard/internal/control"
)

const dialTimeout = 5 * time.Second

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "svx-poke:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("svx-poke", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		addr     = fs.String("addr", envOr("CONTROL_ADDR", "127.0.0.1:8091"), "TCP control address")
		redisURL = fs.String("redis", "", "publish through this Redis URL instead of TCP")
		channel  = fs.String("channel", envOr("REDIS_CONTROL_CHANNEL", redis.DefaultControlChannel), "Redis control channel")
		verbose  = fs.Bool("verbose", false, "verbose logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))

	cmd, err := control.Parse(strings.Join(fs.Args(), " "))
	if err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}
	line := control.Format(cmd)

	if *redisURL != "" {
		return publish(ctx, *redisURL, *channel, line, out)
	}
	return sendTCP(ctx, *addr, line)
}

func sendTCP(ctx context.Context, addr, line string) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	slog.Debug("Sent control line", "addr", addr, "line", line)
	return nil
}

func publish(ctx context.Context, redisURL, channel, line string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	rdb, err := redis.NewClient(ctx, redisURL, nil)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	n, err := redis.NewPublisher(rdb, channel).Publish(ctx, line)
	if err != nil {
		return err
	}
	slog.Debug("Published control line", "redis", sanitizeURL(redisURL), "channel", channel, "line", line)
	fmt.Fprintf(out, "delivered to %d subscriber(s)\n", n)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// sanitizeURL hides the password of a Redis URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
