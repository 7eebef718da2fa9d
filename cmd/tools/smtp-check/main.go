// Package main implements the smtp-check CLI tool for diagnosing mail
// server connectivity before a pipeline run.
//
// Usage:
//
//	go run ./cmd/tools/smtp-check \
//	  --host=mail.example.com --port=465 \
//	  --username=store@example.com \
//	  --probe-to=me@example.com
//
// Environment variables (used as defaults when flags are not set):
//
//	SMTP_SERVER    - mail server host
//	SMTP_PORT      - submission port
//	SMTP_USERNAME  - auth username
//	SMTP_PASSWORD  - auth password
//
// The tool attempts an implicit TLS connection first, then a plaintext
// connection upgraded with STARTTLS, reporting which modes the server
// accepts. With --probe-to set it also sends a one-line test message
// through the first working mode.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"time"
)

type checkResult struct {
	mode string
	err  error
}

func main() {
	host := flag.String("host", os.Getenv("SMTP_SERVER"), "mail server host (or SMTP_SERVER env)")
	port := flag.Int("port", envInt("SMTP_PORT", 465), "submission port (or SMTP_PORT env)")
	username := flag.String("username", os.Getenv("SMTP_USERNAME"), "auth username (or SMTP_USERNAME env)")
	password := flag.String("password", os.Getenv("SMTP_PASSWORD"), "auth password (or SMTP_PASSWORD env)")
	from := flag.String("from", "", "sender address for the probe message (defaults to --username)")
	probeTo := flag.String("probe-to", "", "send a test message to this address through the first working mode")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification")
	timeout := flag.Duration("timeout", 15*time.Second, "per-connection timeout")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *host == "" {
		logger.Error("--host or SMTP_SERVER is required")
		os.Exit(1)
	}
	if *from == "" {
		*from = *username
	}

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	tlsConfig := &tls.Config{ServerName: *host, InsecureSkipVerify: *insecure}

	results := []checkResult{
		{mode: "implicit-tls", err: checkImplicitTLS(addr, *host, tlsConfig, *username, *password, *timeout)},
		{mode: "starttls", err: checkSTARTTLS(addr, *host, tlsConfig, *username, *password, *timeout)},
	}

	working := ""
	for _, r := range results {
		if r.err != nil {
			logger.Warn("connection mode failed", "mode", r.mode, "error", r.err.Error())
			continue
		}
		logger.Info("connection mode OK", "mode", r.mode)
		if working == "" {
			working = r.mode
		}
	}

	if working == "" {
		logger.Error("no working connection mode", "host", *host, "port", *port)
		os.Exit(1)
	}

	if *probeTo != "" {
		if err := sendProbe(working, addr, *host, tlsConfig, *username, *password, *from, *probeTo, *timeout); err != nil {
			logger.Error("probe send failed", "mode", working, "error", err.Error())
			os.Exit(1)
		}
		logger.Info("probe message sent", "mode", working, "to", *probeTo)
	}

	fmt.Printf("OK: %s %s\n", addr, working)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// dialClient opens an SMTP client in the given mode with TLS established.
func dialClient(mode, addr, host string, tlsConfig *tls.Config, timeout time.Duration) (*smtp.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	dialer := &net.Dialer{}

	if mode == "starttls" {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial: %w", err)
		}
		client, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("greeting: %w", err)
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
		return client, nil
	}

	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("tls dial: %w", err)
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("greeting: %w", err)
	}
	return client, nil
}

func checkMode(mode, addr, host string, tlsConfig *tls.Config, username, password string, timeout time.Duration) error {
	client, err := dialClient(mode, addr, host, tlsConfig, timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	if username != "" {
		auth := smtp.PlainAuth("", username, password, host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	return client.Quit()
}

func checkImplicitTLS(addr, host string, tlsConfig *tls.Config, username, password string, timeout time.Duration) error {
	return checkMode("implicit-tls", addr, host, tlsConfig, username, password, timeout)
}

func checkSTARTTLS(addr, host string, tlsConfig *tls.Config, username, password string, timeout time.Duration) error {
	return checkMode("starttls", addr, host, tlsConfig, username, password, timeout)
}

func sendProbe(mode, addr, host string, tlsConfig *tls.Config, username, password, from, to string, timeout time.Duration) error {
	client, err := dialClient(mode, addr, host, tlsConfig, timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	if username != "" {
		auth := smtp.PlainAuth("", username, password, host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: SMTP connectivity probe\r\n\r\nConnection mode %s verified at %s.\r\n",
		from, to, mode, time.Now().UTC().Format(time.RFC3339))
	if _, err := w.Write([]byte(body)); err != nil {
		w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return client.Quit()
}
