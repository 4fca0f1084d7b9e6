package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/ai"
	"diagram-sync/internal/analyzer"
	"diagram-sync/internal/config"
	"diagram-sync/internal/graph"
	"diagram-sync/internal/logger"
	"diagram-sync/internal/renderer"
	"diagram-sync/internal/sanitizer"
	"diagram-sync/internal/store"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	diagramType string
	logLevel    string
	enableAI    bool
	aiAPIKey    string
	jsonOutput  bool
	direction   string
	outputPath  string
	documentID  string
	withContent bool
)

// env 命令共享的依赖
type env struct {
	cfg      *config.Config
	log      zerolog.Logger
	logData  *logger.LogData
	registry *adapter.Registry
	aiClient ai.Client
	analyzer *analyzer.HybridAnalyzer
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "diagramctl",
		Short:         "图文本与图结构双向同步工具",
		Long:          "清洗、解析、生成、校验 Mermaid 风格的图文本，并提供交互式双向编辑会话",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件 (YAML)")
	rootCmd.PersistentFlags().StringVar(&diagramType, "type", "", "图类型，文本中有声明时以声明为准")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug/info/warn/error)")
	rootCmd.PersistentFlags().BoolVar(&enableAI, "enable-ai", false, "允许 AI 辅助解析（需要 API Key）")
	rootCmd.PersistentFlags().StringVar(&aiAPIKey, "ai-key", "", "AI API Key（或使用环境变量 DASHSCOPE_API_KEY）")

	cleanCmd := &cobra.Command{
		Use:   "clean [file]",
		Short: "去除图文本前后的说明文字",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runClean,
	}

	parseCmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "解析图文本为节点和连线",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runParse,
	}
	parseCmd.Flags().BoolVar(&jsonOutput, "json", false, "输出 JSON")

	generateCmd := &cobra.Command{
		Use:   "generate [graph.json]",
		Short: "由图 JSON ({nodes, edges}) 生成图文本",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGenerate,
	}
	generateCmd.Flags().StringVar(&direction, "direction", "", "流程图方向 (TD/LR/...)")

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "结构校验",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}

	roundtripCmd := &cobra.Command{
		Use:   "roundtrip [file]",
		Short: "检查 解析→生成→解析→生成 是否稳定",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRoundtrip,
	}

	reportCmd := &cobra.Command{
		Use:   "report [file]",
		Short: "生成 Markdown 报告",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReport,
	}
	reportCmd.Flags().StringVar(&outputPath, "output", "", "输出文件，默认标准输出")

	suggestCmd := &cobra.Command{
		Use:   "suggest [file]",
		Short: "推断 ER 图中未声明的关系",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSuggest,
	}

	historyCmd := &cobra.Command{
		Use:   "history <document-id>",
		Short: "查看已保存的版本",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().BoolVar(&withContent, "content", false, "附带每个版本的文本")

	editCmd := &cobra.Command{
		Use:   "edit [file]",
		Short: "交互式编辑会话",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEdit,
	}
	editCmd.Flags().StringVar(&documentID, "doc", "scratch", "文档 ID（保存版本时使用）")

	rootCmd.AddCommand(cleanCmd, parseCmd, generateCmd, validateCmd, roundtripCmd, reportCmd, suggestCmd, historyCmd, editCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func newEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logData, err := logger.New().FromPath(cfg.Log.Path).Level(cfg.Log.Level).Console(true).Make()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	e := &env{cfg: cfg, log: logData.Logger, logData: logData}
	e.registry = adapter.DefaultRegistry(cfg.Layout.Spacing)

	apiKey := aiAPIKey
	if apiKey == "" {
		apiKey = cfg.AI.APIKey
	}
	if enableAI || cfg.AI.Enabled {
		if apiKey == "" {
			fmt.Println("⚠️  未提供 API Key，跳过 AI 辅助")
			fmt.Println("   提示：使用 --ai-key 或设置环境变量 DASHSCOPE_API_KEY")
		} else {
			e.aiClient = ai.NewDashScopeClient(apiKey, cfg.AI.Endpoint, cfg.AI.Model)
		}
	}
	e.analyzer = analyzer.NewHybridAnalyzer(e.registry, e.aiClient, cfg.Layout.Spacing, e.log)
	return e, nil
}

func (e *env) close() {
	e.logData.Close()
}

func (e *env) analyze(ctx context.Context, text string) *analyzer.Analysis {
	return e.analyzer.Analyze(ctx, text, analyzer.Options{DiagramType: diagramType, AllowAI: e.aiClient != nil})
}

// readInput 读取文件，无参数或 "-" 时读取标准输入
func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func printDiagnostics(diags []string) {
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "  - %s\n", d)
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args)
	if err != nil {
		return err
	}
	res, err := sanitizer.Clean(raw)
	if err != nil {
		printDiagnostics(res.Diagnostics)
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ %s，移除 %d 行\n", res.DiagramType, res.RemovedLineCount)
	printDiagnostics(res.Diagnostics)
	fmt.Println(res.Text)
	return nil
}

func runParse(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args)
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	an := e.analyze(cmd.Context(), raw)
	if jsonOutput {
		data, err := json.MarshalIndent(an.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if !an.Result.Success {
		printDiagnostics(an.Diagnostics())
		return errors.New(an.Result.Metadata.Failure.Message())
	}
	fmt.Printf("✓ %s (parser: %s)\n", an.Adapter.Type(), an.Result.Metadata.Parser)
	fmt.Printf("  节点 %d 个，连线 %d 条\n", len(an.Result.Nodes), len(an.Result.Edges))
	for _, n := range an.Result.Nodes {
		fmt.Printf("  [%s] %s (%s)\n", n.ID, n.Label, n.Type)
	}
	for _, ed := range an.Result.Edges {
		fmt.Printf("  %s → %s %s\n", ed.Source, ed.Target, ed.Label)
	}
	printDiagnostics(an.Diagnostics())
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args)
	if err != nil {
		return err
	}
	var doc graph.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("decode graph: %w", err)
	}
	kind := diagramType
	if kind == "" {
		kind = doc.DiagramType
	}
	if kind == "" {
		return errors.New("diagram type required: use --type or set diagramType in the JSON")
	}
	a := adapter.DefaultRegistry(config.DefaultSpacing).Resolve(kind)
	fmt.Println(a.Generate(doc.Nodes, doc.Edges, adapter.GenerateOptions{Direction: direction}))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args)
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	an := e.analyzer.Analyze(cmd.Context(), raw, analyzer.Options{DiagramType: diagramType})
	if an.Validation.Valid {
		fmt.Printf("✓ %s 校验通过\n", an.Adapter.Type())
		return nil
	}
	for _, msg := range an.Validation.Errors {
		fmt.Printf("✗ %s\n", msg)
	}
	return fmt.Errorf("%d validation error(s)", len(an.Validation.Errors))
}

func runRoundtrip(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args)
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	an := e.analyze(cmd.Context(), raw)
	if !an.Result.Success {
		return errors.New(an.Result.Metadata.Failure.Message())
	}
	opts := adapter.GenerateOptions{Direction: an.Result.Metadata.Direction}
	t1 := an.Adapter.Generate(an.Result.Nodes, an.Result.Edges, opts)
	p2 := an.Adapter.Parse(t1)
	t2 := an.Adapter.Generate(p2.Nodes, p2.Edges, opts)
	p3 := an.Adapter.Parse(t2)
	t3 := an.Adapter.Generate(p3.Nodes, p3.Edges, opts)

	fmt.Println(t1)
	if t1 != t2 || t2 != t3 {
		fmt.Fprintln(os.Stderr, "✗ 生成结果不稳定")
		fmt.Fprintln(os.Stderr, strings.Repeat("-", 40))
		fmt.Fprintln(os.Stderr, t2)
		return errors.New("round trip is not a fixed point")
	}
	fmt.Fprintf(os.Stderr, "✓ 往返稳定（节点 %d，连线 %d）\n", len(p3.Nodes), len(p3.Edges))
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args)
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	an := e.analyze(cmd.Context(), raw)
	if !an.Result.Success {
		return errors.New(an.Result.Metadata.Failure.Message())
	}
	doc := graph.Document{
		DiagramType:      an.Adapter.Type(),
		RawText:          an.Clean.Text,
		Nodes:            an.Result.Nodes,
		Edges:            an.Result.Edges,
		ParseDiagnostics: an.Diagnostics(),
	}
	var suggestions []analyzer.Suggestion
	if an.Adapter.DefaultNodeRole() == graph.RoleEntity {
		suggestions = analyzer.NewRelationshipInferer().Infer(doc.Nodes, doc.Edges)
	}
	content := renderer.NewMarkdownRenderer().Render(doc, suggestions)

	if outputPath == "" {
		fmt.Print(content)
		return nil
	}
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return err
	}
	fmt.Printf("✓ %s\n", outputPath)
	return nil
}

func runSuggest(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args)
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	an := e.analyze(cmd.Context(), raw)
	if !an.Result.Success {
		return errors.New(an.Result.Metadata.Failure.Message())
	}
	if an.Adapter.DefaultNodeRole() != graph.RoleEntity {
		return fmt.Errorf("relationship suggestions need an erDiagram, got %s", an.Adapter.Type())
	}

	fmt.Println("🔗 推断实体间关系...")
	suggestions := analyzer.NewRelationshipInferer().Infer(an.Result.Nodes, an.Result.Edges)
	fmt.Printf("✓ 发现 %d 个推断关系\n", len(suggestions))
	for _, s := range suggestions {
		fmt.Printf("  %s %s %s : %s (置信度: %.2f)\n", s.Edge.Source, s.Edge.Data.Cardinality, s.Edge.Target, s.Edge.Label, s.Confidence)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	st, err := store.Open(e.cfg.Store.Driver, e.cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	versions, err := st.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Print(renderer.NewHistoryRenderer().Render(args[0], versions, withContent))
	return nil
}
