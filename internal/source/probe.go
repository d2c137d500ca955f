package source

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ProbeRTSP performs an RTSP OPTIONS handshake without opening a media
// session. Credentials are stripped from the request line.
func ProbeRTSP(ctx context.Context, rtspURL string, timeout time.Duration) error {
	u, err := url.Parse(rtspURL)
	if err != nil {
		return fmt.Errorf("invalid rtsp url: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	secure := strings.EqualFold(u.Scheme, "rtsps")
	host := u.Host
	if u.Port() == "" {
		port := "554"
		if secure {
			port = "322"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	var conn net.Conn
	dialer := &net.Dialer{Timeout: timeout}
	if secure {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: u.Hostname()}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", host)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", host)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", RedactURL(rtspURL), err)
	}
	defer conn.Close()

	u.User = nil
	msg := fmt.Sprintf("OPTIONS %s RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: vigil-preflight\r\n\r\n", u.String())
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write OPTIONS: %w", err)
	}

	statusLine, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read OPTIONS response: %w", err)
	}
	parts := strings.Fields(statusLine)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "RTSP/") {
		return fmt.Errorf("malformed response: %q", strings.TrimSpace(statusLine))
	}
	code := parts[1]
	if code == "401" || code == "403" {
		return fmt.Errorf("auth_failed: %s", code)
	}
	if !strings.HasPrefix(code, "2") {
		return fmt.Errorf("stream_error: %s", code)
	}
	return nil
}
