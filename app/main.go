package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/sashabaranov/go-openai"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stankin/antispam/app/bot"
	"github.com/stankin/antispam/app/detector"
	"github.com/stankin/antispam/app/events"
	"github.com/stankin/antispam/app/ledger"
	"github.com/stankin/antispam/app/storage"
	"github.com/stankin/antispam/app/storage/engine"
)

type options struct {
	Telegram struct {
		Token string `long:"token" env:"TOKEN" description:"telegram bot token" required:"true"`
		Group int64  `long:"group" env:"GROUP" description:"id of the moderated group" required:"true"`
	} `group:"telegram" namespace:"telegram" env-namespace:"TELEGRAM"`

	Notify struct {
		Chat          int64 `long:"chat" env:"CHAT" description:"id of the moderators' notification chat" required:"true"`
		SureThread    int   `long:"sure-thread" env:"SURE_THREAD" description:"thread id for confident detections"`
		UnsureThread  int   `long:"unsure-thread" env:"UNSURE_THREAD" description:"thread id for unsure detections"`
		PartialThread int   `long:"partial-thread" env:"PARTIAL_THREAD" description:"thread id for partial detections"`
		MutedThread   int   `long:"muted-thread" env:"MUTED_THREAD" description:"thread id for mute reports"`
	} `group:"notify" namespace:"notify" env-namespace:"NOTIFY"`

	DB string `long:"db" env:"DB" default:"antispam.db" description:"database, a sqlite file or postgres url"`

	Model struct {
		Dir   string `long:"dir" env:"DIR" default:"models" description:"directory with classifier models"`
		Name  string `long:"name" env:"NAME" default:"stankin-spam-bert" description:"classifier model name"`
		Watch bool   `long:"watch" env:"WATCH" description:"reload classifier on model directory changes"`
	} `group:"model" namespace:"model" env-namespace:"MODEL"`

	CasAPI  string `long:"cas-api" env:"CAS_API" default:"https://api.cas.chat" description:"CAS reputation API"`
	LolsAPI string `long:"lols-api" env:"LOLS_API" default:"https://api.lols.bot" description:"LOLS reputation API"`

	OpenAI struct {
		Token             string `long:"token" env:"TOKEN" description:"openai token, llm check disabled if not set"`
		Model             string `long:"model" env:"MODEL" default:"gpt-4o-mini" description:"openai model"`
		Prompt            string `long:"prompt" env:"PROMPT" default:"" description:"openai system prompt, if empty uses builtin default"`
		MaxTokensResponse int    `long:"max-tokens-response" env:"MAX_TOKENS_RESPONSE" default:"16" description:"openai max tokens in response"`
		MaxTokensRequest  int    `long:"max-tokens-request" env:"MAX_TOKENS_REQUEST" default:"3000" description:"openai max tokens in request"`
		MaxSymbolsRequest int    `long:"max-symbols-request" env:"MAX_SYMBOLS_REQUEST" default:"12000" description:"openai max symbols in request, failback if tokenizer failed"`
	} `group:"openai" namespace:"openai" env-namespace:"OPENAI"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable spam rotated logs"`
		FileName   string `long:"file" env:"FILE"  default:"antispam.log" description:"location of spam log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Testing bool `long:"testing" env:"TESTING" description:"testing mode, check messages from admins too"`
	Dbg     bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	TGDbg   bool `long:"tg-dbg" env:"TG_DEBUG" description:"telegram debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("stankin-antispam %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Telegram.Token, opts.OpenAI.Token)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	tbAPI, err := tbapi.NewBotAPI(opts.Telegram.Token)
	if err != nil {
		return fmt.Errorf("can't make telegram bot, %w", err)
	}
	tbAPI.Debug = opts.TGDbg

	db, err := engine.New(ctx, opts.DB)
	if err != nil {
		return fmt.Errorf("can't make db engine for %s, %w", opts.DB, err)
	}
	defer db.Close()

	settings, err := storage.NewSettings(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make settings store, %w", err)
	}
	records, err := storage.NewSpamRecords(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make spam records store, %w", err)
	}
	whitelist, err := storage.NewWhitelist(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make whitelist store, %w", err)
	}
	collected, err := storage.NewCollected(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make collected store, %w", err)
	}
	users, err := storage.NewUsers(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make users store, %w", err)
	}
	offenders, err := storage.NewOffenders(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make offenders store, %w", err)
	}

	det := makeDetector(ctx, opts)

	loggerWr, err := makeSpamLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make spam log writer, %w", err)
	}
	defer loggerWr.Close()

	tgListener := events.TelegramListener{
		TbAPI:      tbAPI,
		Detector:   det,
		Settings:   settings,
		Records:    records,
		Whitelist:  whitelist,
		Collected:  collected,
		Users:      users,
		Ledger:     ledger.New(offenders),
		SpamLogger: makeSpamLogger(loggerWr),
		Notifier: &events.Notifier{
			TbAPI:         tbAPI,
			ChatID:        opts.Notify.Chat,
			SureThread:    opts.Notify.SureThread,
			UnsureThread:  opts.Notify.UnsureThread,
			PartialThread: opts.Notify.PartialThread,
			MutedThread:   opts.Notify.MutedThread,
		},
		ChatID:  opts.Telegram.Group,
		Testing: opts.Testing,
	}
	log.Printf("[DEBUG] telegram listener config: {group: %d, notify: %d, testing: %v}",
		tgListener.ChatID, opts.Notify.Chat, opts.Testing)

	if err := tgListener.Do(ctx); err != nil {
		return fmt.Errorf("telegram listener failed, %w", err)
	}
	return nil
}

// makeDetector assembles the detection pipeline: bert classifier,
// reputation checkers and the optional llm check
func makeDetector(ctx context.Context, opts options) *detector.Detector {
	classifier := detector.NewClassifier(opts.Model.Dir, opts.Model.Name)
	log.Printf("[DEBUG] classifier model: %s in %s", opts.Model.Name, opts.Model.Dir)

	if opts.Model.Watch {
		go func() {
			if err := detector.WatchModels(ctx, opts.Model.Dir, classifier.Reset); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[WARN] model watcher stopped, %v", err)
			}
		}()
	}

	reputation := detector.NewReputationChecker(opts.CasAPI, opts.LolsAPI)

	var llm detector.LLMChecking
	if opts.OpenAI.Token != "" {
		log.Printf("[WARN] openai enabled")
		llmConfig := detector.LLMConfig{
			Model:             opts.OpenAI.Model,
			SystemPrompt:      opts.OpenAI.Prompt,
			MaxTokensResponse: opts.OpenAI.MaxTokensResponse,
			MaxTokensRequest:  opts.OpenAI.MaxTokensRequest,
			MaxSymbolsRequest: opts.OpenAI.MaxSymbolsRequest,
		}
		log.Printf("[DEBUG] openai config: %+v", llmConfig)
		llm = detector.NewLLMChecker(openai.NewClient(opts.OpenAI.Token), llmConfig)
	}

	return detector.New(classifier, reputation, llm)
}

// makeSpamLogger creates spam logger to keep reports about spam messages
// it writes json lines to the provided writer
func makeSpamLogger(wr io.Writer) events.SpamLogger {
	return events.SpamLoggerFunc(func(msg bot.Message, res detector.Result) {
		text := strings.ReplaceAll(msg.Content(), "\n", " ")
		text = strings.TrimSpace(text)
		log.Printf("[INFO] spam detected from %v, verdict: %s", msg.From, res.Verdict)
		log.Printf("[DEBUG] spam message: %s", text)
		m := struct {
			TimeStamp   string  `json:"ts"`
			DisplayName string  `json:"display_name"`
			UserName    string  `json:"user_name"`
			UserID      int64   `json:"user_id"`
			Verdict     string  `json:"verdict"`
			Confidence  float64 `json:"confidence"`
			Text        string  `json:"text"`
		}{
			TimeStamp:   time.Now().In(time.Local).Format(time.RFC3339),
			DisplayName: msg.From.DisplayName,
			UserName:    msg.From.Username,
			UserID:      msg.From.ID,
			Verdict:     res.Verdict.String(),
			Confidence:  res.Prediction.Probs[1],
			Text:        text,
		}
		line, err := json.Marshal(&m)
		if err != nil {
			log.Printf("[WARN] can't marshal json, %v", err)
			return
		}
		if _, err := wr.Write(append(line, '\n')); err != nil {
			log.Printf("[WARN] can't write to log, %v", err)
		}
	})
}

// makeSpamLogWriter creates spam log writer to keep reports about spam messages
// it parses options and makes lumberjack logger with rotation
func makeSpamLogWriter(opts options) (accessLog io.WriteCloser, err error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	maxSize, perr := sizeParse(opts.Logger.MaxSize)
	if perr != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", perr)
	}

	maxSize /= 1048576

	log.Printf("[INFO] logger enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

// sizeParse converts size string with k/m/g/t suffix to bytes
func sizeParse(inp string) (uint64, error) {
	if inp == "" {
		return 0, errors.New("empty value")
	}
	for i, sfx := range []string{"k", "m", "g", "t"} {
		if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
			val, err := strconv.Atoi(inp[:len(inp)-1])
			if err != nil {
				return 0, fmt.Errorf("can't parse %s: %w", inp, err)
			}
			return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
		}
	}
	return strconv.ParseUint(inp, 10, 64)
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
