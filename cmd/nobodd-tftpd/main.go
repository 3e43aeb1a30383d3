// Command nobodd-tftpd serves files out of FAT disk images over TFTP, for
// netbooting Raspberry Pi devices straight off a boot partition image.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/waveform80/nobodd/boot"
	"github.com/waveform80/nobodd/config"
	"github.com/waveform80/nobodd/disk"
	"github.com/waveform80/nobodd/tftp"
)

// Exit codes.
const (
	exitOK          = 0
	exitConfigError = 1
	exitBindFailure = 2
	exitInterrupt   = 130
)

// defaultGracePeriod bounds how long a SIGTERM/SIGINT shutdown waits for
// in-flight transfers to finish before force-closing them.
const defaultGracePeriod = 5 * time.Second

// sdListenFdsStart is the first inherited file descriptor under the
// systemd socket-activation convention (sd_listen_fds(3)).
const sdListenFdsStart = 3

// cliError pairs an error with the process exit code it should produce.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		listenAddr string
		port       string
		boardFlags []string
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:           "nobodd-tftpd",
		Short:         "Serve files from FAT disk images over TFTP for netbooting",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			registry, listen, portStr, err := loadConfiguration(configCmdInput{
				configPath:    configPath,
				listenAddr:    listenAddr,
				port:          port,
				boardFlags:    boardFlags,
				listenChanged: cmd.Flags().Changed("listen"),
				portChanged:   cmd.Flags().Changed("port"),
			})
			if err != nil {
				return &cliError{code: exitConfigError, err: err}
			}

			conn, err := listenPacket(listen, portStr)
			if err != nil {
				return &cliError{code: exitBindFailure, err: err}
			}

			resolver := boot.NewResolver(registry, disk.WholeImage{})
			dispatcher := tftp.NewDispatcher(conn, resolver, log)

			return serve(cmd.Context(), log, dispatcher, resolver, configPath)
		},
	}

	flags := root.Flags()
	flags.StringVar(&listenAddr, "listen", "0.0.0.0", `address to listen on: a literal IP, "stdin" to inherit fd 0, or "systemd" to inherit a socket-activation fd`)
	flags.StringVar(&port, "port", "69", "port number or service name")
	flags.StringArrayVar(&boardFlags, "board", nil, "SERIAL,PATH[,PARTITION[,IP]] — repeatable")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVarP(&configPath, "config", "c", "", "path to an INI configuration file")

	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		var ce *cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			return ce.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	return exitOK
}

type configCmdInput struct {
	configPath    string
	listenAddr    string
	port          string
	boardFlags    []string
	listenChanged bool
	portChanged   bool
}

// loadConfiguration combines an optional --config file with --listen/--port/
// --board flags: flags explicitly passed on the command line override the
// file's [tftp] settings, and --board entries override or add to the file's
// boards by serial number.
func loadConfiguration(in configCmdInput) (*boot.Registry, string, string, error) {
	listen, portStr := in.listenAddr, in.port
	boards := make(map[uint32]boot.Board)

	if in.configPath != "" {
		cfg, err := config.Load(in.configPath)
		if err != nil {
			return nil, "", "", err
		}
		if !in.listenChanged {
			listen = cfg.Listen
		}
		if !in.portChanged {
			portStr = cfg.Port
		}
		for _, b := range cfg.Registry.Boards() {
			boards[b.Serial] = b
		}
	}

	for _, spec := range in.boardFlags {
		b, err := parseBoardFlag(spec)
		if err != nil {
			return nil, "", "", err
		}
		boards[b.Serial] = b
	}

	list := make([]boot.Board, 0, len(boards))
	for _, b := range boards {
		list = append(list, b)
	}
	return boot.NewRegistry(list), listen, portStr, nil
}

// parseBoardFlag parses one --board SERIAL,PATH[,PARTITION[,IP]] entry.
func parseBoardFlag(spec string) (boot.Board, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 2 {
		return boot.Board{}, fmt.Errorf("--board %q: want SERIAL,PATH[,PARTITION[,IP]]", spec)
	}
	serial, err := boot.NormalizeSerial(parts[0])
	if err != nil {
		return boot.Board{}, fmt.Errorf("--board %q: %w", spec, err)
	}
	b := boot.Board{Serial: serial, ImagePath: parts[1], Partition: 1}
	if len(parts) >= 3 && parts[2] != "" {
		p, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return boot.Board{}, fmt.Errorf("--board %q: bad partition %q: %w", spec, parts[2], err)
		}
		b.Partition = uint32(p)
	}
	if len(parts) >= 4 && parts[3] != "" {
		ip := net.ParseIP(parts[3])
		if ip == nil {
			return boot.Board{}, fmt.Errorf("--board %q: bad ip %q", spec, parts[3])
		}
		b.IP = ip
	}
	return b, nil
}

// listenPacket opens the server's main UDP socket: a literal address
// binds a fresh socket, "stdin" inherits fd 0, and "systemd" inherits the
// single fd a service manager passed via socket activation.
func listenPacket(addr, port string) (net.PacketConn, error) {
	switch addr {
	case "stdin":
		f := os.NewFile(0, "stdin")
		if f == nil {
			return nil, errors.New("listen stdin: fd 0 unavailable")
		}
		return net.FilePacketConn(f)
	case "systemd":
		if n, _ := strconv.Atoi(os.Getenv("LISTEN_FDS")); n < 1 {
			return nil, errors.New("listen systemd: LISTEN_FDS not set by service manager")
		}
		f := os.NewFile(uintptr(sdListenFdsStart), "systemd-socket")
		if f == nil {
			return nil, errors.New("listen systemd: inherited fd unavailable")
		}
		return net.FilePacketConn(f)
	default:
		p, err := resolvePort(port)
		if err != nil {
			return nil, err
		}
		udpAddr, err := bestUDPAddr(addr, p)
		if err != nil {
			return nil, err
		}
		return net.ListenUDP("udp", udpAddr)
	}
}

func resolvePort(port string) (int, error) {
	if p, err := strconv.Atoi(port); err == nil {
		return p, nil
	}
	p, err := net.LookupPort("udp", port)
	if err != nil {
		return 0, fmt.Errorf("resolving port %q: %w", port, err)
	}
	return p, nil
}

// bestUDPAddr picks the address family a literal --listen address resolves
// to, rather than hard-coding IPv4.
func bestUDPAddr(host string, port int) (*net.UDPAddr, error) {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return &net.UDPAddr{IP: net.IPv4zero, Port: port}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("invalid --listen address %q", host)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// serve runs the dispatcher until SIGTERM/SIGINT, reloading the
// configuration on SIGHUP. Shutdown stops accepting new requests
// immediately, then waits defaultGracePeriod for in-flight transfers to
// finish before force-closing them.
func serve(ctx context.Context, log *slog.Logger, d *tftp.Dispatcher, resolver *boot.Resolver, configPath string) error {
	acceptCtx, stopAccepting := context.WithCancel(ctx)
	defer stopAccepting()
	forceCtx, forceClose := context.WithCancel(ctx)
	defer forceClose()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sig)

	var interrupted bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.ServeGraceful(acceptCtx, forceCtx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-sig:
				switch s {
				case syscall.SIGHUP:
					reloadConfig(log, resolver, configPath)
				case syscall.SIGINT, syscall.SIGTERM:
					interrupted = s == syscall.SIGINT
					log.Info("shutting down", "grace", defaultGracePeriod, "signal", s)
					stopAccepting()
					select {
					case <-time.After(defaultGracePeriod):
						log.Info("grace period elapsed, force-closing remaining transfers")
					case <-gctx.Done():
					}
					forceClose()
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return &cliError{code: exitConfigError, err: err}
	}
	if interrupted {
		return &cliError{code: exitInterrupt, err: errors.New("interrupted")}
	}
	return nil
}

func reloadConfig(log *slog.Logger, resolver *boot.Resolver, configPath string) {
	if configPath == "" {
		log.Warn("SIGHUP received but no --config file was given, ignoring")
		return
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("reloading configuration", "path", configPath, "error", err)
		return
	}
	resolver.SetRegistry(cfg.Registry)
	log.Info("configuration reloaded", "path", configPath, "boards", cfg.Registry.Len())
}
