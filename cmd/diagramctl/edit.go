package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/graph"
	"diagram-sync/internal/store"
	diagramsync "diagram-sync/internal/sync"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var errExit = errors.New("exit requested")

var commandHelp = map[string]string{
	"show":    "show                      打印当前文本和图",
	"text":    "text                      输入新文本，单独一行 . 结束",
	"add":     "add <id> [label]          添加节点",
	"del":     "del <id>                  删除节点及其连线",
	"mv":      "mv <id> <x> <y>           移动节点",
	"label":   "label <id> <label>        修改节点标签",
	"link":    "link <from> <to> [label]  连接两个节点",
	"elabel":  "elabel <edge> <label>     修改连线标签",
	"unlink":  "unlink <edge>             删除连线",
	"flush":   "flush                     立即执行等待中的同步",
	"save":    "save                      保存版本",
	"assist":  "assist                    AI 辅助重新解析",
	"improve": "improve                   AI 改进文本",
	"state":   "state                     当前状态",
	"exit":    "exit                      退出",
}

func runEdit(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	raw := ""
	if len(args) > 0 {
		if raw, err = readInput(args); err != nil {
			return err
		}
	} else {
		kind := diagramType
		if kind == "" {
			kind = "flowchart"
		}
		raw = e.registry.Resolve(kind).Generate(nil, nil, adapter.GenerateOptions{})
	}

	st, err := store.Open(e.cfg.Store.Driver, e.cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	ctrl := diagramsync.New(diagramsync.Options{
		Analyzer:  e.analyzer,
		AI:        e.aiClient,
		Persister: st,
		Debounce:  e.cfg.Sync.Debounce,
		Spacing:   e.cfg.Layout.Spacing,
		Logger:    e.log,
	})
	defer ctrl.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "diagram> ",
		HistoryFile:     filepath.Join(os.TempDir(), "diagramctl.history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	r := newREPL(cmd.Context(), ctrl, rl.Stdout())
	unsubscribe := ctrl.Subscribe(r.onSnapshot)
	defer unsubscribe()

	if _, err := ctrl.SwitchDocument(cmd.Context(), documentID, diagramType, raw); err != nil {
		return err
	}
	r.show()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if r.buffer != nil {
				r.buffer = nil
				rl.SetPrompt(r.prompt())
				continue
			}
			fmt.Fprintln(r.out, "Use 'exit' or 'quit' to exit the program.")
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		if err := r.handleLine(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintln(r.out, "Error:", err)
		}
		rl.SetPrompt(r.prompt())
	}
}

// repl 交互式编辑命令
type repl struct {
	ctx    context.Context
	ctrl   *diagramsync.Controller
	out    io.Writer
	buffer []string // text 模式下累积的行
}

func newREPL(ctx context.Context, ctrl *diagramsync.Controller, out io.Writer) *repl {
	return &repl{ctx: ctx, ctrl: ctrl, out: out}
}

func (r *repl) prompt() string {
	if r.buffer != nil {
		return "... "
	}
	return "diagram> "
}

func (r *repl) onSnapshot(s diagramsync.Snapshot) {
	if s.State == diagramsync.StateError {
		fmt.Fprintf(r.out, "\n⚠️  %s\n", s.Reason)
		return
	}
	fmt.Fprintf(r.out, "\n⟳ %s: %d 节点, %d 连线\n", s.State, len(s.Nodes), len(s.Edges))
}

// handleLine 处理一行输入
func (r *repl) handleLine(line string) error {
	if r.buffer != nil {
		if strings.TrimSpace(line) == "." {
			text := strings.Join(r.buffer, "\n")
			r.buffer = nil
			return r.ctrl.SetText(text)
		}
		r.buffer = append(r.buffer, line)
		return nil
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	args := parseArgs(line)
	return r.execute(args)
}

func (r *repl) execute(args []string) error {
	switch args[0] {
	case "show":
		r.show()
		return nil
	case "text":
		r.buffer = []string{}
		return nil
	case "add":
		if len(args) < 2 {
			return errors.New("usage: " + commandHelp["add"])
		}
		n := &graph.Node{ID: args[1], Label: strings.Join(args[2:], " ")}
		return r.ctrl.HandleEvent(diagramsync.Event{Kind: diagramsync.NodeAdded, Node: n})
	case "del":
		if len(args) != 2 {
			return errors.New("usage: " + commandHelp["del"])
		}
		return r.ctrl.HandleEvent(diagramsync.Event{Kind: diagramsync.NodeRemoved, NodeID: args[1]})
	case "mv":
		if len(args) != 4 {
			return errors.New("usage: " + commandHelp["mv"])
		}
		x, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid x: %w", err)
		}
		y, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("invalid y: %w", err)
		}
		return r.ctrl.HandleEvent(diagramsync.Event{Kind: diagramsync.NodeMoved, NodeID: args[1], Position: graph.Position{X: x, Y: y}})
	case "label":
		if len(args) < 3 {
			return errors.New("usage: " + commandHelp["label"])
		}
		return r.ctrl.HandleEvent(diagramsync.Event{Kind: diagramsync.NodeRelabeled, NodeID: args[1], Label: strings.Join(args[2:], " ")})
	case "link":
		if len(args) < 3 {
			return errors.New("usage: " + commandHelp["link"])
		}
		e := &graph.Edge{Source: args[1], Target: args[2], Label: strings.Join(args[3:], " ")}
		return r.ctrl.HandleEvent(diagramsync.Event{Kind: diagramsync.EdgeConnected, Edge: e})
	case "elabel":
		if len(args) < 3 {
			return errors.New("usage: " + commandHelp["elabel"])
		}
		return r.ctrl.HandleEvent(diagramsync.Event{Kind: diagramsync.EdgeRelabeled, EdgeID: args[1], Label: strings.Join(args[2:], " ")})
	case "unlink":
		if len(args) != 2 {
			return errors.New("usage: " + commandHelp["unlink"])
		}
		return r.ctrl.HandleEvent(diagramsync.Event{Kind: diagramsync.EdgeRemoved, EdgeID: args[1]})
	case "flush":
		r.ctrl.Flush()
		return nil
	case "save":
		o := <-r.ctrl.Save(r.ctx)
		if o.Err != nil {
			return fmt.Errorf("save failed: %w", o.Err)
		}
		fmt.Fprintf(r.out, "✓ 已保存 v%d (%s)\n", o.Version.Number, o.Version.ID)
		return nil
	case "assist":
		_, err := r.ctrl.AssistParse(r.ctx)
		return err
	case "improve":
		imp, err := r.ctrl.Improve(r.ctx)
		if err != nil {
			return err
		}
		if len(imp.Changes) == 0 {
			fmt.Fprintln(r.out, "没有需要改进的地方")
			return nil
		}
		for _, c := range imp.Changes {
			fmt.Fprintf(r.out, "  - %s\n", c)
		}
		return nil
	case "state", "status":
		s := r.ctrl.Snapshot()
		fmt.Fprintf(r.out, "%s [%s] %s, generation %d, pending %v\n", s.DocumentID, s.DiagramType, s.State, s.Generation, r.ctrl.Pending())
		return nil
	case "help":
		r.printHelp()
		return nil
	case "exit", "quit":
		return errExit
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (r *repl) show() {
	s := r.ctrl.Snapshot()
	fmt.Fprintln(r.out, s.Text)
	fmt.Fprintln(r.out, strings.Repeat("-", 40))
	for _, n := range s.Nodes {
		fmt.Fprintf(r.out, "  [%s] %s (%.0f, %.0f)\n", n.ID, n.Label, n.Position.X, n.Position.Y)
	}
	for _, e := range s.Edges {
		fmt.Fprintf(r.out, "  %s: %s → %s %s\n", e.ID, e.Source, e.Target, e.Label)
	}
	if s.State == diagramsync.StateError {
		fmt.Fprintf(r.out, "⚠️  %s\n", s.Reason)
	}
}

func (r *repl) printHelp() {
	names := make([]string, 0, len(commandHelp))
	for name := range commandHelp {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(r.out, "Available commands:")
	for _, name := range names {
		fmt.Fprintf(r.out, "  %s\n", commandHelp[name])
	}
}

// parseArgs 按空格切分，双引号内的空格保留
func parseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false

	for _, char := range input {
		switch char {
		case '"':
			inQuotes = !inQuotes
		case ' ', '\t':
			if inQuotes {
				current.WriteRune(char)
			} else if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}
