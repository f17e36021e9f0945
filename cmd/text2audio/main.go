package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/swiss-ai-center/text2audio/audio"
	"github.com/swiss-ai-center/text2audio/bridge"
	"github.com/swiss-ai-center/text2audio/config"
	"github.com/swiss-ai-center/text2audio/engine"
	"github.com/swiss-ai-center/text2audio/service"
	"github.com/swiss-ai-center/text2audio/storage"
	"github.com/swiss-ai-center/text2audio/task"
)

var (
	runVerbose bool

	serveConfigPath string

	execDescriptorPath string
	execInputPath      string
	execOutputPath     string
)

func NewRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "text2audio",
		Short: "text2audio forwards text prompts to Hugging Face text-to-audio models",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	// serve subcommand
	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the service",
		Run: func(cmd *cobra.Command, args []string) {
			if runVerbose {
				log.SetLevel(log.DebugLevel)
			}
			if err := runServe(cmd.Context()); err != nil {
				log.Errorf("Error: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.PersistentFlags().StringVarP(&serveConfigPath, "config", "c", "", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd)

	// exec subcommand
	var execCmd = &cobra.Command{
		Use:   "exec",
		Short: "Run one inference locally without an engine",
		Run: func(cmd *cobra.Command, args []string) {
			if runVerbose {
				log.SetLevel(log.DebugLevel)
			}
			if err := runExec(cmd.Context()); err != nil {
				log.Errorf("Error: %v", err)
				os.Exit(1)
			}
		},
	}
	// input files mirror the two parts a compute request carries
	execCmd.PersistentFlags().StringVarP(&execDescriptorPath, "descriptor", "d", "", "path to the json_description file")
	execCmd.PersistentFlags().StringVarP(&execInputPath, "input", "i", "", "path to the input_text file")
	execCmd.PersistentFlags().StringVarP(&execOutputPath, "output", "o", "result.ogg", "path for the Ogg result")
	rootCmd.AddCommand(execCmd)

	// version subcommand
	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the service version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(service.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	// verbose flag
	rootCmd.PersistentFlags().BoolVarP(&runVerbose, "verbose", "v", false, "verbose output")
	return rootCmd
}

func runServe(ctx context.Context) error {
	cfg := config.Default()
	if serveConfigPath != "" {
		var err error
		cfg, err = config.Load(serveConfigPath)
		if err != nil {
			return err
		}
	}
	if err := cfg.FromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !runVerbose {
		lvl, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level %q: %v", cfg.LogLevel, err)
		}
		log.SetLevel(lvl)
	}

	artifacts, err := storage.NewFileStorage(cfg.StorageDir)
	if err != nil {
		return err
	}
	transcoder, err := audio.NewFFmpeg()
	if err != nil {
		return err
	}

	// the upstream client deliberately carries no timeout; model loading
	// can take minutes and cancellation comes from the task context
	br := bridge.New(&http.Client{}, transcoder)
	tasks := task.NewStore()
	engineClient := engine.NewClient(nil)
	runner := task.NewRunner(br, tasks, artifacts, engineClient, cfg.Workers, cfg.QueueSize)
	info := service.NewInfo(cfg.ServiceURL)
	srv := service.NewServer(cfg.Addr(), info, runner, tasks, artifacts, cfg.MaxUploadSize)
	announcer := engine.NewAnnouncer(engineClient, info, cfg.EngineURLs, cfg.EngineAnnounceRetries, cfg.AnnounceRetryDelay())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner.Start(ctx)
	announcer.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		runner.Stop()
		return err
	case <-ctx.Done():
	}

	log.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// announce loops exit on the cancelled context; withdraw once they have
	announcer.Wait()
	announcer.Withdraw(shutdownCtx)
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Errorf("Error stopping server: %v", err)
	}
	runner.Stop()
	<-errCh
	return nil
}

func runExec(ctx context.Context) error {
	if execDescriptorPath == "" || execInputPath == "" {
		return fmt.Errorf("descriptor and input files are required")
	}
	jsonDescription, err := os.ReadFile(execDescriptorPath)
	if err != nil {
		return fmt.Errorf("error reading %s: %v", execDescriptorPath, err)
	}
	inputText, err := os.ReadFile(execInputPath)
	if err != nil {
		return fmt.Errorf("error reading %s: %v", execInputPath, err)
	}

	transcoder, err := audio.NewFFmpeg()
	if err != nil {
		return err
	}
	br := bridge.New(&http.Client{}, transcoder)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := br.Process(ctx, jsonDescription, inputText)
	if err != nil {
		return err
	}
	if err := os.WriteFile(execOutputPath, res.Data, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %v", execOutputPath, err)
	}
	log.Infof("wrote %d bytes (%s, %s source, %s) to %s", len(res.Data), res.MediaType, res.Source, res.Duration, execOutputPath)
	return nil
}

func main() {
	NewRootCmd().Execute()
}
