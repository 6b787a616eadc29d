package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	xtransform "golang.org/x/text/transform"

	"github.com/momentics/sockmux/internal/config"
	"github.com/momentics/sockmux/internal/transform"
)

const dialTimeout = 5 * time.Second

type sendOptions struct {
	socket  string
	message string
	preview bool
	wait    time.Duration
}

func newSendCmd() *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send stdin or a message to a running sockmux server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("socket") {
				if v := os.Getenv(config.EnvPrefix + "SOCKET"); v != "" {
					opts.socket = v
				}
			}
			var src io.Reader = cmd.InOrStdin()
			if cmd.Flags().Changed("message") {
				src = strings.NewReader(opts.message)
			}
			return send(opts, src, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.socket, "socket", config.DefaultSocketPath, "server socket path")
	f.StringVarP(&opts.message, "message", "m", "", "send this text instead of reading stdin")
	f.BoolVar(&opts.preview, "preview", false, "also print what the server will display")
	f.DurationVar(&opts.wait, "wait", 0, "keep retrying the connection for this long")
	return cmd
}

func send(opts sendOptions, src io.Reader, out io.Writer) error {
	conn, err := dialUnix(opts.socket, opts.wait)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.socket, err)
	}
	defer conn.Close()

	if opts.preview {
		pw := xtransform.NewWriter(out, transform.Transformer{})
		defer pw.Close()
		src = io.TeeReader(src, pw)
	}
	if _, err := io.Copy(conn, src); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		return uc.CloseWrite()
	}
	return nil
}

// dialUnix connects to path, retrying with exponential backoff for up to
// wait when the server is not listening yet.
func dialUnix(path string, wait time.Duration) (net.Conn, error) {
	if wait <= 0 {
		return net.DialTimeout("unix", path, dialTimeout)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = wait

	var conn net.Conn
	err := backoff.Retry(func() error {
		c, err := net.DialTimeout("unix", path, dialTimeout)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, b)
	return conn, err
}
