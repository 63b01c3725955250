// Command devicefeed publishes device updates read from stdin, one JSON
// object per line, to the realtime relay channel:
//
//	{"deviceId":"7","type":"device-update","data":{"temperature":21.5}}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/geocoder89/devicewatch/internal/config"
	"github.com/geocoder89/devicewatch/internal/observability"
	"github.com/geocoder89/devicewatch/internal/realtime"
	"github.com/geocoder89/devicewatch/internal/redisclient"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	addr := flag.String("redis", cfg.RedisAddr, "redis address")
	flag.Parse()

	if err := run(*addr, cfg, log); err != nil {
		log.Error("devicefeed stopped", "err", err)
		os.Exit(1)
	}
}

func run(addr string, cfg config.Config, log *slog.Logger) error {
	if addr == "" {
		return fmt.Errorf("redis address is required (REDIS_ADDR or -redis)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc, err := redisclient.Connect(ctx, redisclient.Config{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer rc.Close()

	// hub is nil: this process only publishes
	relay := realtime.NewRedisRelay(rc.Raw(), nil, log)

	scanner := bufio.NewScanner(os.Stdin)
	published := 0

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var u realtime.DeviceUpdate
		if err := json.Unmarshal(line, &u); err != nil {
			log.Warn("skipping malformed line", "err", err)
			continue
		}

		if err := relay.Publish(ctx, string(u.DeviceID), u.Type, u.Data); err != nil {
			log.Warn("publish failed", "device_id", u.DeviceID, "err", err)
			continue
		}
		published++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	log.Info("devicefeed done", "published", published)
	return nil
}
