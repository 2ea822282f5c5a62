package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/client/call"
	"github.com/dkeye/Meet/internal/client/media"
	"github.com/dkeye/Meet/internal/client/mesh"
	"github.com/dkeye/Meet/internal/client/signaling"
	"github.com/dkeye/Meet/internal/domain"
)

var (
	flagServer  string
	flagRoom    string
	flagName    string
	flagUserID  string
	flagToken   string
	flagICE     []string
	flagNoAudio bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and chat from stdin",
	Long: `Join a room by its code. Every stdin line is sent as a chat message.

Commands:
  /mute, /unmute   toggle the outgoing audio
  /video           toggle the advertised video flag
  /peers           show participants and media stats
  /leave           end the call

Examples:
  meetclient join --room Xy12ab34 --name alice
  meetclient join --server wss://meet.example.com/api/ws/signal --token $JWT --room Xy12ab34`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRoom == "" {
			return fmt.Errorf("--room is required")
		}
		if flagUserID == "" {
			flagUserID = uuid.NewString()
		}
		user, err := domain.NewUser(flagUserID, flagName, "")
		if err != nil {
			return err
		}
		return joinRoom(cmd.Context(), *user)
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagServer, "server", "ws://localhost:1066/api/ws/signal", "signaling endpoint")
	joinCmd.Flags().StringVar(&flagRoom, "room", "", "room code")
	joinCmd.Flags().StringVar(&flagName, "name", "guest", "display name")
	joinCmd.Flags().StringVar(&flagUserID, "user-id", "", "user id (random when empty)")
	joinCmd.Flags().StringVar(&flagToken, "token", "", "bearer token for authenticated servers")
	joinCmd.Flags().StringSliceVar(&flagICE, "ice", nil, "ICE server URLs (defaults to public STUN)")
	joinCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "receive only, send no audio track")
}

func joinRoom(parent context.Context, user domain.User) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := signaling.NewClient(flagServer, flagToken)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	opts := mesh.Options{
		Factory: rtc.Factory(iceConfig()),
		Signal:  client,
	}
	opts.Local = openLocalMedia(ctx, string(user.ID), flagNoAudio, media.NewSource, os.Stdout)
	mgr := mesh.NewManager(ctx, opts)
	c := call.New(client, mgr, user, os.Stdout)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.Run(gctx)
		cancel()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := c.Join(ctx, domain.RoomCode(flagRoom)); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	fmt.Printf("joined %s as %s, type /leave to quit\n", flagRoom, user.Name)

	lines := make(chan string)
	go readLines(lines)
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				quit, err := c.HandleLine(gctx, line)
				if err != nil {
					fmt.Fprintln(os.Stderr, "!", err)
				}
				if quit {
					return nil
				}
			}
		}
	})

	err := g.Wait()
	c.Leave()
	log.Info().Str("module", "meetclient").Msg("bye")
	return err
}

type sourceFunc func(ctx context.Context, streamID string) (*media.Source, error)

// openLocalMedia returns nil when audio is disabled or cannot start; the
// mesh then negotiates receive-only.
func openLocalMedia(ctx context.Context, streamID string, disabled bool, open sourceFunc, out io.Writer) mesh.LocalMedia {
	if disabled {
		return nil
	}
	src, err := open(ctx, streamID)
	if err != nil {
		log.Warn().Err(err).Str("module", "meetclient").Msg("local media unavailable")
		_, _ = fmt.Fprintln(out, "! local audio unavailable, joining receive-only")
		return nil
	}
	return src
}

func iceConfig() webrtc.Configuration {
	if len(flagICE) == 0 {
		return rtc.DefaultWebRTCConfig()
	}
	return rtc.Config(flagICE)
}

func readLines(out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out <- sc.Text()
	}
}
