package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/server"
	"github.com/GriffinCanCode/miniapp-host/internal/providers/webview"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/loop"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

func newExecCmd(open opener) *cobra.Command {
	var (
		decision string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "exec <appId> <action> [param]",
		Short: "Run one bridge command against a headless renderer",
		Long: `Exec loads the bridge shim into a headless renderer, calls
MiniAppBridge.exec with the action and JSON param, and prints the
settlement. Permission prompts are answered by --decision: allow, deny, or
ask to read y/n from stdin.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			param := "null"
			if len(args) == 3 {
				param = args[2]
				if !gjson.Valid(param) {
					return fmt.Errorf("param is not valid JSON: %s", param)
				}
			}
			prompter, err := newCLIPrompter(decision, cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return withRuntime(open, cmd, func(ctx context.Context, rt *server.Runtime) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				outcome, console, err := execBridge(ctx, rt.BridgeConfig(args[0], prompter), args[1], param)
				for _, entry := range console {
					fmt.Fprintf(cmd.ErrOrStderr(), "console.%s: %s\n", entry.Level, entry.Message)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, outcome)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "deny", "answer to permission prompts: allow, deny or ask")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time to wait for the settlement")
	return cmd
}

// execBridge runs one exec call through a dispatcher bound to a fresh
// renderer and waits for its settlement.
func execBridge(ctx context.Context, cfg bridge.Config, action, param string) (webview.Outcome, []webview.LogEntry, error) {
	renderer, err := webview.New(webview.DefaultConfig(), cfg.Logger)
	if err != nil {
		return webview.Outcome{}, nil, err
	}
	defer renderer.Close()

	dispatcher, err := bridge.New(cfg)
	if err != nil {
		return webview.Outcome{}, nil, err
	}
	l := loop.New(64)
	go l.Run()

	channel := bridge.NewChannel(dispatcher, l, renderer)
	renderer.OnMessage(func(raw []byte) { channel.Receive(ctx, raw) })
	defer func() {
		l.Close()
		dispatcher.Close()
		channel.Wait()
	}()

	script := fmt.Sprintf("MiniAppBridge.exec(%s, %s)", bridge.QuoteJS(action), param)
	type result struct {
		id  any
		err error
	}
	started := make(chan result, 1)
	if !l.Post(func() {
		id, err := renderer.Run(ctx, script)
		started <- result{id, err}
	}) {
		return webview.Outcome{}, nil, errors.New("renderer loop closed")
	}

	var res result
	select {
	case res = <-started:
	case <-ctx.Done():
		return webview.Outcome{}, renderer.Console(), ctx.Err()
	}
	if res.err != nil {
		return webview.Outcome{}, renderer.Console(), fmt.Errorf("failed to call bridge: %w", res.err)
	}
	outcome, err := renderer.WaitOutcome(ctx, fmt.Sprint(res.id))
	return outcome, renderer.Console(), err
}

// cliPrompter answers permission prompts from a fixed decision or stdin.
type cliPrompter struct {
	mu  sync.Mutex
	ask bool
	def bridge.Decision
	in  *bufio.Reader
	out io.Writer
}

func newCLIPrompter(decision string, in io.Reader, out io.Writer) (*cliPrompter, error) {
	p := &cliPrompter{in: bufio.NewReader(in), out: out}
	switch strings.ToLower(decision) {
	case "allow":
		p.def = bridge.DecisionAllow
	case "deny", "":
		p.def = bridge.DecisionDeny
	case "ask":
		p.ask = true
	default:
		return nil, fmt.Errorf("invalid decision %q: want allow, deny or ask", decision)
	}
	return p, nil
}

func (p *cliPrompter) RequestDevicePermission(ctx context.Context, appID string, permission types.DevicePermissionType) (bridge.Decision, error) {
	return p.decide(ctx, fmt.Sprintf("%s requests device permission %s", appID, permission))
}

func (p *cliPrompter) RequestCustomPermissions(ctx context.Context, appID string, permissions []types.PermissionDeclaration) (bridge.Decision, error) {
	names := make([]string, 0, len(permissions))
	for _, d := range permissions {
		names = append(names, d.Type.Title())
	}
	return p.decide(ctx, fmt.Sprintf("%s requests %s", appID, strings.Join(names, ", ")))
}

func (p *cliPrompter) decide(ctx context.Context, question string) (bridge.Decision, error) {
	if !p.ask {
		return p.def, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return bridge.DecisionDeny, err
	}
	fmt.Fprintf(p.out, "%s. Allow? [y/N] ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return bridge.DecisionDeny, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return bridge.DecisionAllow, nil
	}
	if errors.Is(err, io.EOF) && strings.TrimSpace(line) == "" {
		return bridge.DecisionDeny, err
	}
	return bridge.DecisionDeny, nil
}
