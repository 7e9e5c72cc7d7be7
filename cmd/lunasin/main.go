package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danupratama/lunasin/agent"
	"github.com/danupratama/lunasin/agent/terminal"
	"github.com/danupratama/lunasin/config"
	"github.com/danupratama/lunasin/intent"
	"github.com/danupratama/lunasin/ledger"
	"github.com/danupratama/lunasin/llm"
	"github.com/danupratama/lunasin/logger"
	"github.com/danupratama/lunasin/mcp"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	askFlag := flag.Bool("ask", false, "Answer a free-form question using the remote tools instead of the ledger")
	stdioFlag := flag.String("mcp-command", "", "Run a local tool server subprocess instead of the configured HTTP endpoint")
	flag.Parse()

	// A missing .env file is fine; the environment may already be set.
	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %+v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "No database configured. Set DATABASE_URL or database.dsn in .lunasin/config.yaml.")
		os.Exit(1)
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %+v\n", err)
		os.Exit(1)
	}
	if err := ledger.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "Error migrating database: %+v\n", err)
		os.Exit(1)
	}

	// Provider constructors never fail on missing credentials; those surface
	// as config errors on first use.
	var client llm.Client
	switch cfg.LLM.Client {
	case "", "openai":
		client = llm.NewOpenAIClient(cfg.LLM.Model, cfg.LLM.Timeout())
	case "anthropic":
		client = llm.NewAnthropicClient(cfg.LLM.Model, cfg.LLM.Timeout())
	case "gemini":
		client = llm.NewGeminiClient(cfg.LLM.Model, cfg.LLM.Timeout())
	case "bedrock":
		client = llm.NewBedrockClient(cfg.LLM.Model, cfg.LLM.Timeout())
	case "mock":
		client = &llm.MockClient{}
	default:
		fmt.Fprintf(os.Stderr, "Invalid llm client '%s'. Must be 'openai', 'anthropic', 'gemini', 'bedrock' or 'mock'.\n", cfg.LLM.Client)
		os.Exit(1)
	}

	var tools mcp.ToolInvoker
	if *stdioFlag != "" {
		parts := strings.Fields(*stdioFlag)
		stdio, err := mcp.NewStdioClient(parts[0], parts[1:], log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting tool server: %+v\n", err)
			os.Exit(1)
		}
		defer stdio.Close()
		tools = stdio
	} else if cfg.MCP.Endpoint != "" {
		tools = mcp.NewClient(cfg.MCP.Endpoint, cfg.MCP.Timeout(), log)
	}

	svc := ledger.NewService(ledger.NewStore(db), log)
	parser := intent.NewParser(client, log)
	a := agent.NewAgent(parser, svc, client, tools, log)

	prompt := strings.Join(flag.Args(), " ")
	ctx := context.Background()

	if *askFlag {
		if prompt == "" {
			fmt.Fprintln(os.Stderr, "Usage: lunasin -ask <question>")
			os.Exit(1)
		}
		answer, err := a.AnswerWithTools(ctx, prompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
			os.Exit(1)
		}
		fmt.Println(answer)
		return
	}

	fmt.Println("Lunasin siap. Tulis catatan Anda.")
	term := terminal.New(a)
	if err := term.Run(ctx, prompt); err != nil {
		fmt.Fprintf(os.Stderr, "Session stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}
