// Package main is the studyrag CLI entry point.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/Lumosity23/studyRAG-sub001/internal/app"
	"github.com/Lumosity23/studyRAG-sub001/internal/cli"
	"github.com/Lumosity23/studyRAG-sub001/internal/config"
	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/internal/store"
	"github.com/Lumosity23/studyRAG-sub001/internal/upload"
	"github.com/Lumosity23/studyRAG-sub001/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

// errUsage is returned after usage was printed for a malformed command line.
var errUsage = errors.New("invalid arguments")

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "studyrag", "config.yaml")
	}
	return ""
}

// loadConfig loads config from path. With no path it looks for config.yaml in
// the current directory, then the user config directory, and falls back to
// built-in defaults when neither exists. It returns the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	candidates := []string{"config.yaml"}
	if p := defaultConfigPath(); p != "" {
		candidates = append(candidates, p)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			cfg, err := config.Load(c)
			if err != nil {
				return nil, "", err
			}
			return cfg, c, nil
		}
	}
	return config.Default(), "", nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type command struct {
	name string
	run  func(args []string, s *streams) error
}

// streams are the process streams; tests replace them.
type streams struct {
	in       io.Reader
	out, err io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	s := &streams{in: stdin, out: stdout, err: stderr}
	commands := []command{
		{"health", runHealth},
		{"chat", runChat},
		{"conversations", runConversations},
		{"documents", runDocuments},
		{"upload", runUpload},
		{"watch", runWatch},
	}
	name := args[0]
	switch name {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "studyrag version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	}
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(args[1:], s); err != nil {
			if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
				fmt.Fprintf(stderr, "%s failed: %v\n", name, err)
			}
			return 1
		}
		return 0
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n", name)
	printUsage(stderr)
	return 1
}

// flagsFirst moves any flags (and their values) that appear after positional
// arguments to the front so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func flagsFirst(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	config string
	debug  bool
	output string
}

func newFlagSet(name string, s *streams) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(s.err)
	cf := &commonFlags{}
	fs.StringVar(&cf.config, "config", "", "config file path (default: ./config.yaml, then "+defaultConfigPath()+")")
	fs.BoolVar(&cf.debug, "debug", false, "enable debug logging")
	fs.StringVar(&cf.output, "output", "text", "output format: text or json")
	return fs, cf
}

// session is one CLI invocation's client.
type session struct {
	*app.App
	format cli.OutputFormat
	ctx    context.Context
	stop   context.CancelFunc
}

func openSession(cf *commonFlags) (*session, error) {
	format, err := cli.ParseOutputFormat(cf.output)
	if err != nil {
		return nil, err
	}
	cfg, resolved, err := loadConfig(cf.config)
	if err != nil {
		return nil, err
	}
	debug := cfg.Debug || cf.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if !debug {
		logger = logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.String("api", cfg.Server.APIBaseURL))

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &session{App: a, format: format, ctx: ctx, stop: stop}, nil
}

func (s *session) Close() {
	s.App.Close()
	s.stop()
	_ = s.Logger.Sync()
}

func runHealth(args []string, st *streams) error {
	fs, cf := newFlagSet("health", st)
	if err := fs.Parse(flagsFirst(args)); err != nil {
		return err
	}
	s, err := openSession(cf)
	if err != nil {
		return err
	}
	defer s.Close()
	h, err := s.Library.Health(s.ctx)
	if err != nil {
		return err
	}
	return cli.WriteHealth(st.out, s.Client.BaseURL(), h, s.format)
}

func runChat(args []string, st *streams) error {
	fs, cf := newFlagSet("chat", st)
	conversation := fs.String("conversation", "", "conversation id to continue (default: start a new one)")
	if err := fs.Parse(flagsFirst(args)); err != nil {
		return err
	}
	s, err := openSession(cf)
	if err != nil {
		return err
	}
	defer s.Close()

	if *conversation != "" {
		if err := s.Chat.Open(s.ctx, *conversation); err != nil {
			return err
		}
	}
	send := func(text string) error {
		reply, err := s.Chat.Send(s.ctx, s.Store.ActiveConversationID(), text)
		if err != nil {
			return err
		}
		return cli.WriteReply(st.out, reply, s.Store.ActiveConversationID(), s.format)
	}

	if text := strings.TrimSpace(strings.Join(fs.Args(), " ")); text != "" {
		return send(text)
	}
	// Interactive: one message per line until EOF.
	scanner := bufio.NewScanner(st.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			fmt.Fprintf(st.err, "message not sent: %v\n", err)
		}
		if s.ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func runConversations(args []string, st *streams) error {
	if len(args) < 1 {
		fmt.Fprintln(st.err, "Usage: studyrag conversations <list|show|delete|search> [flags] [arg]")
		return errUsage
	}
	sub := args[0]
	fs, cf := newFlagSet("conversations "+sub, st)
	limit := fs.Int("limit", 10, "maximum number of search results")
	if err := fs.Parse(flagsFirst(args[1:])); err != nil {
		return err
	}
	needArg := sub == "show" || sub == "delete" || sub == "search"
	if needArg && fs.NArg() < 1 {
		fmt.Fprintf(st.err, "Usage: studyrag conversations %s <arg>\n", sub)
		return errUsage
	}
	s, err := openSession(cf)
	if err != nil {
		return err
	}
	defer s.Close()

	switch sub {
	case "list":
		if err := s.Registry.Refresh(s.ctx); err != nil {
			return err
		}
		return cli.WriteConversations(st.out, s.Registry.List(), s.format)
	case "show":
		if err := s.Chat.Open(s.ctx, fs.Arg(0)); err != nil {
			return err
		}
		return cli.WriteMessages(st.out, s.Store.Messages(), s.format)
	case "delete":
		if err := s.Registry.Delete(s.ctx, fs.Arg(0)); err != nil {
			return err
		}
		fmt.Fprintf(st.out, "Conversation deleted: %s\n", fs.Arg(0))
		return nil
	case "search":
		if err := s.Registry.Refresh(s.ctx); err != nil {
			return err
		}
		hits, err := s.Registry.Search(strings.Join(fs.Args(), " "), *limit)
		if err != nil {
			return err
		}
		return cli.WriteConversations(st.out, hits, s.format)
	default:
		fmt.Fprintf(st.err, "Unknown conversations subcommand: %s\n", sub)
		return errUsage
	}
}

func runDocuments(args []string, st *streams) error {
	if len(args) < 1 {
		fmt.Fprintln(st.err, "Usage: studyrag documents <list|delete|reindex> [flags] [id]")
		return errUsage
	}
	sub := args[0]
	fs, cf := newFlagSet("documents "+sub, st)
	var filter models.ListFilter
	var status string
	fs.StringVar(&filter.Search, "search", "", "filter by filename")
	fs.StringVar(&status, "status", "", "filter by status: pending, processing, completed, failed")
	fs.StringVar(&filter.FileType, "type", "", "filter by file type, e.g. pdf")
	fs.StringVar(&filter.SortBy, "sort", "", "sort by upload_date, filename, file_size or chunk_count")
	fs.StringVar(&filter.SortOrder, "order", "", "sort order: asc or desc")
	fs.IntVar(&filter.Page, "page", 1, "page number")
	fs.IntVar(&filter.Limit, "limit", 20, "documents per page (max 100)")
	wait := fs.Bool("wait", false, "reindex: wait until processing finishes")
	if err := fs.Parse(flagsFirst(args[1:])); err != nil {
		return err
	}
	filter.Status = models.DocumentStatus(status)
	if (sub == "delete" || sub == "reindex") && fs.NArg() < 1 {
		fmt.Fprintf(st.err, "Usage: studyrag documents %s <document-id>\n", sub)
		return errUsage
	}
	s, err := openSession(cf)
	if err != nil {
		return err
	}
	defer s.Close()

	switch sub {
	case "list":
		if _, err := s.Library.Refresh(s.ctx, filter); err != nil {
			return err
		}
		docs, total := s.Store.Documents()
		return cli.WriteDocuments(st.out, docs, total, s.format)
	case "delete":
		if err := s.Library.Delete(s.ctx, fs.Arg(0)); err != nil {
			return err
		}
		fmt.Fprintf(st.out, "Document deleted: %s\n", fs.Arg(0))
		return nil
	case "reindex":
		if *wait {
			if err := s.Start(s.ctx); err != nil {
				return err
			}
		}
		resp, err := s.Library.Reindex(s.ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if !*wait || resp.TaskID == "" {
			fmt.Fprintf(st.out, "Reindex started: %s (task %s)\n", resp.DocumentID, resp.TaskID)
			return nil
		}
		return waitUploads(s, st, []string{resp.TaskID}, nil)
	default:
		fmt.Fprintf(st.err, "Unknown documents subcommand: %s\n", sub)
		return errUsage
	}
}

func runUpload(args []string, st *streams) error {
	fs, cf := newFlagSet("upload", st)
	noWait := fs.Bool("no-wait", false, "return once the files are accepted instead of waiting for processing")
	if err := fs.Parse(flagsFirst(args)); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(st.err, "Usage: studyrag upload [flags] <file...>")
		return errUsage
	}
	s, err := openSession(cf)
	if err != nil {
		return err
	}
	defer s.Close()
	if !*noWait {
		if err := s.Start(s.ctx); err != nil {
			return err
		}
	}

	var files []upload.File
	for _, path := range fs.Args() {
		f, err := upload.LoadFile(path, s.Config.Upload.MaxFileSize)
		if err != nil {
			fmt.Fprintf(st.err, "skipping %s: %v\n", path, err)
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return errors.New("no readable files")
	}
	batch, err := s.Uploads.Submit(s.ctx, files)
	if err != nil {
		return err
	}
	if *noWait {
		var recs []models.UploadProgress
		for _, id := range batch.TaskIDs() {
			if rec, ok := s.Store.Upload(id); ok {
				recs = append(recs, rec)
			}
		}
		return cli.WriteUploads(st.out, recs, batch.Rejected(), s.format)
	}
	return waitUploads(s, st, batch.TaskIDs(), batch.Rejected())
}

// waitUploads follows taskIDs until they finish, printing progress in text mode.
func waitUploads(s *session, st *streams, taskIDs []string, rejected []*models.ValidationError) error {
	if s.format == cli.OutputText {
		p := newProgressPrinter(st.out, s.Store)
		unsubscribe := s.Store.Subscribe(p.onChange)
		defer unsubscribe()
	}
	recs, err := s.Uploads.Wait(s.ctx, taskIDs)
	if s.format == cli.OutputJSON {
		if werr := cli.WriteUploads(st.out, recs, rejected, s.format); werr != nil {
			return werr
		}
	} else {
		for _, r := range rejected {
			fmt.Fprintf(st.out, "rejected   %s: %s\n", r.Filename, r.Reason)
		}
	}
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range recs {
		if r.Status == models.StatusFailed {
			failed++
		}
	}
	if failed+len(rejected) > 0 {
		return fmt.Errorf("%d of %d files not ingested", failed+len(rejected), len(recs)+len(rejected))
	}
	return nil
}

func runWatch(args []string, st *streams) error {
	fs, cf := newFlagSet("watch", st)
	if err := fs.Parse(flagsFirst(args)); err != nil {
		return err
	}
	s, err := openSession(cf)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Start(s.ctx); err != nil {
		return err
	}

	p := newProgressPrinter(st.out, s.Store)
	unsubscribe := s.Store.Subscribe(p.onChange)
	defer unsubscribe()

	w, err := s.Watch(s.ctx, fs.Args())
	if err != nil {
		return err
	}
	fmt.Fprintf(st.out, "Watching %s (Ctrl-C to stop)\n", strings.Join(w.Directories(), ", "))
	<-s.ctx.Done()
	return nil
}

// progressPrinter prints upload progress and notifications as they change.
type progressPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	store *store.Store
	last  map[string]models.UploadProgress
	seen  map[string]bool
}

func newProgressPrinter(w io.Writer, st *store.Store) *progressPrinter {
	p := &progressPrinter{w: w, store: st, last: make(map[string]models.UploadProgress), seen: make(map[string]bool)}
	for _, n := range st.Notifications() {
		p.seen[n.ID] = true
	}
	return p
}

func (p *progressPrinter) onChange(c store.Change) {
	switch c.Kind {
	case store.ChangeUpload:
		rec, ok := p.store.Upload(c.ID)
		if !ok {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		prev, seen := p.last[rec.TaskID]
		if seen && prev.Status == rec.Status && prev.Progress == rec.Progress {
			return
		}
		p.last[rec.TaskID] = rec
		cli.WriteProgressLine(p.w, rec)
	case store.ChangeNotifications:
		notes := p.store.Notifications()
		p.mu.Lock()
		defer p.mu.Unlock()
		var fresh []models.Notification
		for _, n := range notes {
			if !p.seen[n.ID] {
				p.seen[n.ID] = true
				fresh = append(fresh, n)
			}
		}
		cli.WriteNotifications(p.w, fresh)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `studyrag - client for a document-grounded study assistant

Usage:
  studyrag health                             Check that the backend is reachable
  studyrag chat [--conversation id] [text]    Send a message (reads lines from stdin without text)
  studyrag conversations list                 List conversations, most recent first
  studyrag conversations show <id>            Print a conversation transcript
  studyrag conversations delete <id>          Delete a conversation
  studyrag conversations search <query>       Search conversation titles and previews
  studyrag documents list [filters]           List uploaded documents
  studyrag documents delete <id>              Delete a document
  studyrag documents reindex [--wait] <id>    Process a document again
  studyrag upload [--no-wait] <file...>       Upload documents and follow their processing
  studyrag watch [dir...]                     Upload files dropped into watched folders
  studyrag version                            Show version
  studyrag help                               Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml, then the user config directory)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Document List Flags:
  --search string    Filter by filename
  --status string    pending, processing, completed or failed
  --type string      File type, e.g. pdf
  --sort string      upload_date, filename, file_size or chunk_count
  --order string     asc or desc (default: desc)
  --page int         Page number (default: 1)
  --limit int        Documents per page, max 100 (default: 20)

Environment:
  STUDYRAG_API_URL   Backend base URL (default: http://localhost:8000)
  STUDYRAG_WS_URL    Push channel base URL (default: ws://localhost:8000)
  STUDYRAG_DEBUG     Enable debug logging

Examples:
  studyrag upload notes.pdf slides.docx
  studyrag chat "Summarize chapter 3"
  studyrag chat --conversation 6f1c... "And chapter 4?"
  studyrag documents list --status failed
  studyrag conversations search --output json entropy
  studyrag watch ~/Documents/course`)
}
