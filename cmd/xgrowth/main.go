package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"xgrowth/internal/ai"
	"xgrowth/internal/config"
	"xgrowth/internal/jobs"
	"xgrowth/internal/limits"
	"xgrowth/internal/locker"
	"xgrowth/internal/logging"
	"xgrowth/internal/metrics"
	"xgrowth/internal/model"
	"xgrowth/internal/oauth"
	"xgrowth/internal/report"
	"xgrowth/internal/secrets"
	"xgrowth/internal/store"
	"xgrowth/internal/theme"
	"xgrowth/internal/xapi"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "seed":
		cmdSeed()
	case "serve":
		cmdServe()
	case "discover":
		cmdRunOnce("discover")
	case "engage":
		cmdRunOnce("engage")
	case "autopost":
		cmdAutoPost()
	case "usage":
		cmdUsage()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: xgrowth <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./xgrowth.yaml")
	fmt.Println("  seed        Create a demo user with topics and configs")
	fmt.Println("  serve       Run the scheduler, worker pools and metrics server")
	fmt.Println("  discover    Run topic discovery once for -user")
	fmt.Println("  engage      Run the engagement pass once for -user")
	fmt.Println("  autopost    Run the auto-post pass once for -user")
	fmt.Println("  usage       Print a user's limits and usage")
}

func fail(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fail(err)
	}
	cfg.ResolveEnv()
	return cfg
}

// buildDeps wires the full engine from config. The returned close function
// shuts the store down.
func buildDeps(cfg config.Config) (jobs.Deps, func()) {
	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		fail(err)
	}

	codec, err := secrets.New(cfg.Security.TokenEncryptionKey)
	if err != nil {
		st.Close()
		fail(err)
	}

	var lk interface {
		locker.Locker
		locker.SeenSet
		locker.Stash
	}
	if cfg.Redis.URL != "" {
		r, err := locker.Connect(cfg.Redis.URL)
		if err != nil {
			st.Close()
			fail(err)
		}
		lk = r
	} else {
		logging.Warn("redis_not_configured", map[string]any{
			"mode": "in-memory locks, single process only",
		})
		lk = locker.NewMemory()
	}

	oc := xapi.NewOAuthClient(cfg.XApp.TokenURL)
	deps := jobs.Deps{
		Store:  st,
		Ledger: limits.NewLedger(st),
		Tokens: oauth.NewManager(st, codec, oc, cfg.XApp, cfg.Security.TokenEncryptionKey),
		Locker: lk,
		Seen:   lk,
		AI:     ai.NewGenerator(cfg.LLM),
		NewClient: func(accessToken string) xapi.Client {
			return xapi.NewHTTPClient(cfg.XApp.APIBaseURL, accessToken)
		},
		Cfg: cfg,
	}
	return deps, func() { st.Close() }
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./xgrowth.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fail(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdSeed() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	cfgPath := fs.String("config", "./xgrowth.yaml", "config path")
	email := fs.String("email", "demo@xgrowth.local", "demo user email")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	deps, done := buildDeps(cfg)
	defer done()
	ctx := context.Background()

	user, err := deps.Store.GetUserByEmail(ctx, *email)
	if err != nil {
		user, err = deps.Store.CreateUser(ctx, model.User{
			Email: *email,
			Name:  "Demo User",
			Plan:  model.PlanPro,
		})
		if err != nil {
			fail(err)
		}
	}

	keywords := []string{"indie hackers", "saas growth", "build in public"}
	for _, kw := range keywords {
		_, err := deps.Store.CreateTopic(ctx, model.Topic{
			UserID:   user.ID,
			Keyword:  kw,
			Language: "en",
			MinLikes: 5,
			Active:   true,
		})
		if err != nil {
			fail(err)
		}
	}

	if err := deps.Store.UpsertReplyConfig(ctx, model.DefaultReplyConfig(user.ID)); err != nil {
		fail(err)
	}
	if err := deps.Store.UpsertAutoTweetConfig(ctx, model.AutoTweetConfig{
		UserID:           user.ID,
		Topics:           keywords,
		FrequencyMinutes: 240,
		WindowStart:      "08:00",
		WindowEnd:        "22:00",
		Language:         "en",
		Enabled:          true,
	}); err != nil {
		fail(err)
	}

	fmt.Println("Seeded user:", user.ID, user.Email)
	fmt.Println("Connect an X account to start the processors.")
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./xgrowth.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	deps, done := buildDeps(cfg)
	defer done()

	theme.PrintBanner()
	if cfg.Metrics.Addr != "" {
		metrics.StartServer(cfg.Metrics.Addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue(deps)
	queue.Start(ctx)
	logging.Info("serve_started", map[string]any{
		"discovery_every_min":  cfg.Scheduler.DiscoveryMinutes,
		"engagement_every_min": cfg.Scheduler.EngagementMinutes,
		"autopost_every_min":   cfg.Scheduler.AutoPostMinutes,
	})
	jobs.NewScheduler(queue).Run(ctx)
	queue.Wait()
	logging.Info("serve_stopped", nil)
}

func cmdRunOnce(kind string) {
	fs := flag.NewFlagSet(kind, flag.ExitOnError)
	cfgPath := fs.String("config", "./xgrowth.yaml", "config path")
	userID := fs.String("user", "", "user id")
	_ = fs.Parse(os.Args[2:])
	if *userID == "" {
		fail(fmt.Errorf("-user is required"))
	}
	cfg := loadConfig(*cfgPath)
	deps, done := buildDeps(cfg)
	defer done()
	ctx := context.Background()

	switch kind {
	case "discover":
		res, err := jobs.RunDiscovery(ctx, deps, *userID)
		if err != nil {
			fail(err)
		}
		fmt.Printf("discovered=%d skipped=%d blocked=%d\n", res.Discovered, res.Skipped, res.Blocked)
	case "engage":
		res, err := jobs.RunEngagement(ctx, deps, *userID)
		if err != nil {
			fail(err)
		}
		fmt.Printf("replied=%d liked=%d followed=%d blocked=%d\n", res.Replied, res.Liked, res.Followed, res.Blocked)
	}
}

func cmdAutoPost() {
	fs := flag.NewFlagSet("autopost", flag.ExitOnError)
	cfgPath := fs.String("config", "./xgrowth.yaml", "config path")
	userID := fs.String("user", "", "user id")
	force := fs.Bool("force", false, "bypass the enabled/window/frequency gates")
	_ = fs.Parse(os.Args[2:])
	if *userID == "" {
		fail(fmt.Errorf("-user is required"))
	}
	cfg := loadConfig(*cfgPath)
	deps, done := buildDeps(cfg)
	defer done()

	res, err := jobs.RunAutoPost(context.Background(), deps, *userID, *force)
	if err != nil {
		fail(err)
	}
	fmt.Printf("posted=%d skipped=%d blocked=%d", res.Posted, res.Skipped, res.Blocked)
	if res.Reason != "" {
		fmt.Printf(" reason=%s", res.Reason)
	}
	fmt.Println()
}

func cmdUsage() {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	cfgPath := fs.String("config", "./xgrowth.yaml", "config path")
	userID := fs.String("user", "", "user id")
	_ = fs.Parse(os.Args[2:])
	if *userID == "" {
		fail(fmt.Errorf("-user is required"))
	}
	cfg := loadConfig(*cfgPath)
	deps, done := buildDeps(cfg)
	defer done()

	snap, err := deps.Ledger.Snapshot(context.Background(), *userID)
	if err != nil {
		fail(err)
	}
	fmt.Printf("replies  %d / %d\n", snap.Usage.RepliesToday, snap.Limits.RepliesPerDay)
	fmt.Printf("tweets   %d / %d\n", snap.Usage.TweetsToday, snap.Limits.TweetsPerDay)
	fmt.Printf("likes    %d / %d\n", snap.Usage.LikesToday, snap.Limits.LikesPerDay)
	fmt.Printf("hourly   %d / %d\n", snap.Usage.HourlyActions, snap.Limits.HourlyActionCap)
	fmt.Printf("topics   %d / %d\n", snap.Usage.TopicsTracked, snap.Limits.TopicsTracked)
	fmt.Printf("follows today: %d (allowed: %v)\n", snap.Usage.FollowsToday, snap.Limits.AllowFollow)

	logs, err := deps.Store.RecentActionLogs(context.Background(), *userID, 200)
	if err != nil {
		fail(err)
	}
	buckets := report.HourlyActivity(logs)
	if len(buckets) > 0 {
		fmt.Println("recent activity:")
		for _, k := range report.SortedBucketKeys(buckets) {
			fmt.Printf("  %s -> %v\n", k.Format("2006-01-02 15:00"), buckets[k])
		}
	}
}
