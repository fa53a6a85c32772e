package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mkravets/omnibot/internal/config"
	"github.com/mkravets/omnibot/internal/logger"
	"github.com/mkravets/omnibot/internal/scheduler"
)

var (
	jobConfigPath string

	jobAddAt      string
	jobAddEvery   int64
	jobAddCron    string
	jobAddChannel string
	jobAddChat    string
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage scheduled jobs",
	Long: `Inspect and edit the persistent job store directly. Changes take
effect the next time the agent starts, or immediately for a running agent
restarted afterwards.`,
}

var jobAddCmd = &cobra.Command{
	Use:   "add <message>",
	Short: "Add a scheduled job",
	Args:  cobra.ExactArgs(1),
	Run:   runJobAdd,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all scheduled jobs",
	Run:   runJobList,
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	Run:   runJobRemove,
}

var jobImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import jobs from a YAML file",
	Args:  cobra.ExactArgs(1),
	Run:   runJobImport,
}

func init() {
	jobCmd.PersistentFlags().StringVarP(&jobConfigPath, "config", "c", "./config.toml", "Path to configuration file")

	jobAddCmd.Flags().StringVar(&jobAddAt, "at", "", "One-shot fire time, RFC3339")
	jobAddCmd.Flags().Int64Var(&jobAddEvery, "every", 0, "Repeat interval in seconds")
	jobAddCmd.Flags().StringVar(&jobAddCron, "cron", "", "Cron expression, five fields")
	jobAddCmd.Flags().StringVar(&jobAddChannel, "channel", "", "Target channel (required)")
	jobAddCmd.Flags().StringVar(&jobAddChat, "chat", "", "Target chat id (required)")

	jobCmd.AddCommand(jobAddCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobRemoveCmd)
	jobCmd.AddCommand(jobImportCmd)
}

// jobStorage opens the job store named by the config file.
func jobStorage() *scheduler.Storage {
	cfg, err := config.Load(jobConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	return scheduler.NewStorage(cfg.JobsDir(), log)
}

func runJobAdd(cmd *cobra.Command, args []string) {
	job := scheduler.Job{
		ID:        scheduler.GenerateJobID(),
		Payload:   args[0],
		Channel:   jobAddChannel,
		ChatID:    jobAddChat,
		Status:    scheduler.StatusScheduled,
		CreatedAt: time.Now(),
	}

	switch {
	case jobAddAt != "":
		at, err := time.Parse(time.RFC3339, jobAddAt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --at time: %v\n", err)
			os.Exit(1)
		}
		job.Kind = scheduler.KindOneShot
		job.At = &at
		job.NextRun = at
	case jobAddEvery > 0:
		job.Kind = scheduler.KindInterval
		job.EverySeconds = jobAddEvery
	case jobAddCron != "":
		job.Kind = scheduler.KindCron
		job.CronExpr = jobAddCron
	default:
		fmt.Fprintln(os.Stderr, "one of --at, --every, or --cron is required")
		os.Exit(1)
	}

	if err := job.Validate(scheduler.NewCronParser()); err != nil {
		fmt.Fprintf(os.Stderr, "invalid job: %v\n", err)
		os.Exit(1)
	}

	if err := jobStorage().Upsert(job); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save job: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("job added: %s\n", job.ID)
}

func runJobList(cmd *cobra.Command, args []string) {
	jobs, err := jobStorage().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load jobs: %v\n", err)
		os.Exit(1)
	}

	if len(jobs) == 0 {
		fmt.Println("no jobs scheduled")
		return
	}

	for _, job := range jobs {
		schedule := ""
		switch job.Kind {
		case scheduler.KindOneShot:
			schedule = "at " + job.At.Format(time.RFC3339)
		case scheduler.KindInterval:
			schedule = fmt.Sprintf("every %ds", job.EverySeconds)
		case scheduler.KindCron:
			schedule = "cron " + job.CronExpr
		}
		fmt.Printf("%s  [%s] %s  %s/%s  %q\n",
			job.ID, job.Status, schedule, job.Channel, job.ChatID, job.Payload)
	}
	fmt.Printf("total: %d\n", len(jobs))
}

func runJobRemove(cmd *cobra.Command, args []string) {
	if err := jobStorage().Remove(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "failed to remove job: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("job removed: %s\n", args[0])
}

// jobImportFile is the YAML shape accepted by the import command.
type jobImportFile struct {
	Jobs []jobImportSpec `yaml:"jobs"`
}

type jobImportSpec struct {
	Kind         string `yaml:"kind"`
	At           string `yaml:"at,omitempty"`
	EverySeconds int64  `yaml:"every_seconds,omitempty"`
	Cron         string `yaml:"cron,omitempty"`
	Payload      string `yaml:"payload"`
	Channel      string `yaml:"channel"`
	ChatID       string `yaml:"chat_id"`
}

func runJobImport(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read file: %v\n", err)
		os.Exit(1)
	}

	var file jobImportFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse yaml: %v\n", err)
		os.Exit(1)
	}

	if len(file.Jobs) == 0 {
		fmt.Println("no jobs in file")
		return
	}

	storage := jobStorage()
	parser := scheduler.NewCronParser()
	imported := 0

	for i, def := range file.Jobs {
		job := scheduler.Job{
			ID:           scheduler.GenerateJobID(),
			Kind:         scheduler.Kind(def.Kind),
			EverySeconds: def.EverySeconds,
			CronExpr:     def.Cron,
			Payload:      def.Payload,
			Channel:      def.Channel,
			ChatID:       def.ChatID,
			Status:       scheduler.StatusScheduled,
			CreatedAt:    time.Now(),
		}

		if def.At != "" {
			at, err := time.Parse(time.RFC3339, def.At)
			if err != nil {
				fmt.Fprintf(os.Stderr, "job %d: invalid 'at' time: %v\n", i, err)
				os.Exit(1)
			}
			job.At = &at
			job.NextRun = at
		}

		if err := job.Validate(parser); err != nil {
			fmt.Fprintf(os.Stderr, "job %d: %v\n", i, err)
			os.Exit(1)
		}

		if err := storage.Upsert(job); err != nil {
			fmt.Fprintf(os.Stderr, "job %d: failed to save: %v\n", i, err)
			os.Exit(1)
		}
		imported++
	}

	fmt.Printf("imported %d jobs\n", imported)
}
