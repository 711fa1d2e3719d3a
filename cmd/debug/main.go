package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meshhttp/internal/bus"
	"meshhttp/internal/config"
	"meshhttp/internal/connectors"
	"meshhttp/internal/logging"
	"meshhttp/internal/radio"
	"meshhttp/internal/transport"
)

const maxHexPreviewLen = 64

func main() {
	if err := run(); err != nil {
		slog.Error("run debug tool", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (optional)")
	connector := flag.String("connector", "", "connector type: http or serial")
	host := flag.String("host", "", "device host[:port] for the http connector")
	useTLS := flag.Bool("tls", false, "use https when talking to the device")
	serialPort := flag.String("serial-port", "", "serial device path for the serial connector")
	send := flag.String("send", "", "hex-encoded frame to write once after connecting")
	listenFor := flag.Duration("listen-for", 0, "listen duration, e.g. 30s (0 = until interrupt)")
	metricsAddr := flag.String("metrics-addr", "", "expose prometheus metrics on this address (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	applyFlags(&cfg, *connector, *host, *useTLS, *serialPort)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging.Level, ""); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("cli")
	logger.Info("starting meshhttp debug", "connector", cfg.Connection.Connector, "target", connectionTarget(cfg.Connection))

	if *metricsAddr != "" {
		transport.MustRegisterMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(logger, *metricsAddr)
	}

	b := bus.New(logMgr.Logger("bus"))
	defer b.Close()

	tr, err := newTransportForConnection(cfg.Connection)
	if err != nil {
		return err
	}
	svc := radio.NewService(logMgr.Logger("radio"), b, tr)
	watch(ctx, b, logger)
	svc.Start(ctx)

	if *send != "" {
		payload, err := hex.DecodeString(strings.TrimSpace(*send))
		if err != nil {
			return fmt.Errorf("decode send payload: %w", err)
		}
		res := <-svc.Send(payload)
		if res.Err != nil {
			logger.Error("send failed", "error", res.Err)
		} else {
			logger.Info("frame sent", "len", len(payload))
		}
	}

	if *listenFor > 0 {
		logger.Info("listen mode", "duration", *listenFor)
		select {
		case <-ctx.Done():
		case <-time.After(*listenFor):
		}

		return nil
	}

	logger.Info("listening until interrupt")
	<-ctx.Done()

	return nil
}

func applyFlags(cfg *config.AppConfig, connector, host string, useTLS bool, serialPort string) {
	if strings.TrimSpace(connector) != "" {
		cfg.Connection.Connector = config.ConnectorType(strings.TrimSpace(connector))
	}
	if strings.TrimSpace(host) != "" {
		cfg.Connection.Host = strings.TrimSpace(host)
	}
	if useTLS {
		cfg.Connection.UseTLS = true
	}
	if strings.TrimSpace(serialPort) != "" {
		cfg.Connection.SerialPort = strings.TrimSpace(serialPort)
		cfg.Connection.Connector = config.ConnectorSerial
	}
}

func newTransportForConnection(cfg config.ConnectionConfig) (transport.Transport, error) {
	switch cfg.Connector {
	case config.ConnectorHTTP:
		return transport.NewHTTPTransport(transport.HTTPConfig{
			Host:         cfg.Host,
			UseTLS:       cfg.UseTLS,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   time.Duration(cfg.RetryDelayMS) * time.Millisecond,
			PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
			PollTimeout:  time.Duration(cfg.PollTimeoutMS) * time.Millisecond,
			BatchReads:   cfg.BatchReads,
		}), nil
	case config.ConnectorSerial:
		return transport.NewSerialTransport(cfg.SerialPort, cfg.SerialBaud), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}

func connectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorHTTP:
		scheme := "http"
		if cfg.UseTLS {
			scheme = "https"
		}

		return fmt.Sprintf("%s://%s", scheme, cfg.Host)
	case config.ConnectorSerial:
		return fmt.Sprintf("%s@%d", cfg.SerialPort, cfg.SerialBaud)
	default:
		return "unknown"
	}
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}

func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger) {
	connSub := b.Subscribe(connectors.TopicConnStatus)
	rawInSub := b.Subscribe(connectors.TopicRawFrameIn)
	rawOutSub := b.Subscribe(connectors.TopicRawFrameOut)
	errSub := b.Subscribe(connectors.TopicFrameError)

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.Unsubscribe(connSub, connectors.TopicConnStatus)
				b.Unsubscribe(rawInSub, connectors.TopicRawFrameIn)
				b.Unsubscribe(rawOutSub, connectors.TopicRawFrameOut)
				b.Unsubscribe(errSub, connectors.TopicFrameError)

				return
			case raw := <-connSub:
				if status, ok := raw.(connectors.ConnStatus); ok {
					logger.Info("conn", "state", status.State, "transport", status.TransportName, "target", status.Target, "error", status.Err)
				}
			case raw := <-rawInSub:
				if frame, ok := raw.(connectors.RawFrame); ok {
					logger.Info("raw-in", "len", frame.Len, "hex", previewHex(frame.Hex))
				}
			case raw := <-rawOutSub:
				if frame, ok := raw.(connectors.RawFrame); ok {
					logger.Info("raw-out", "len", frame.Len, "hex", previewHex(frame.Hex))
				}
			case raw := <-errSub:
				if event, ok := raw.(connectors.InboundError); ok {
					logger.Warn("read-error", "kind", event.Kind, "message", event.Message)
				}
			}
		}
	}()
}

func previewHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) <= maxHexPreviewLen {
		return hex
	}

	return hex[:maxHexPreviewLen] + "..."
}
