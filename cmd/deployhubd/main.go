// Command deployhubd serves the deployment control plane described by
// spec.md: a session-authenticated HTML surface over a TaskSupervisor
// that refreshes source, checks CI, writes secrets, runs install
// scripts, restarts services, and updates the container dashboard for
// each named deployment.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/deployhub/deployhub-core/auth"
	"github.com/deployhub/deployhub-core/ci"
	"github.com/deployhub/deployhub-core/dashboard"
	"github.com/deployhub/deployhub-core/hostservice"
	"github.com/deployhub/deployhub-core/scm"
	"github.com/deployhub/deployhub-core/store"
	"github.com/deployhub/deployhub-core/task"
	"github.com/deployhub/deployhub-core/web"
	"github.com/deployhub/deployhub-core/webui"
	"github.com/deployhub/deployhub-core/websession"
)

type flags struct {
	deployPath  string
	addr        string
	mountPrefix string
	pidfile     string
	daemonize   bool
	logLevel    string
	debug       bool
	sessionKey  string
	usersFile   string
	jenkinsURL  string
	jenkinsUser string
	jenkinsTok  string
}

func main() {
	f := &flags{}

	root := &cobra.Command{
		Use:   "deployhubd",
		Short: "Self-hosted deployment control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	fl := root.Flags()
	fl.StringVar(&f.deployPath, "deploy-path", ".", "data directory for deployment.json and key files")
	fl.StringVar(&f.addr, "addr", ":8080", "HTTP listen address")
	fl.StringVar(&f.mountPrefix, "mount-prefix", "/deploy", "URL prefix the Controller is mounted under")
	fl.StringVar(&f.pidfile, "pidfile", "", "write the process PID to this file")
	fl.BoolVar(&f.daemonize, "daemonize", false, "detach from the controlling terminal after start")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	fl.BoolVar(&f.debug, "debug", false, "shorthand for --log-level=debug")
	fl.StringVar(&f.sessionKey, "session-key", "", "session cookie signing key, used as raw bytes; random and ephemeral if unset")
	fl.StringVar(&f.usersFile, "users-file", "", "JSON file of username to bcrypt hash, for auth.StaticChecker")
	fl.StringVar(&f.jenkinsURL, "jenkins-url", "http://localhost:8080", "base URL of the Jenkins CI server")
	fl.StringVar(&f.jenkinsUser, "jenkins-user", "", "Jenkins basic-auth user")
	fl.StringVar(&f.jenkinsTok, "jenkins-token", "", "Jenkins basic-auth token")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// daemonizedEnv marks a re-exec'd, detached child process so it doesn't
// fork again.
const daemonizedEnv = "DEPLOYHUBD_DAEMONIZED"

// daemonize re-executes the current command detached from the
// controlling terminal and exits the parent, per the --daemonize flag.
func daemonize() error {
	if os.Getenv(daemonizedEnv) != "" {
		return nil
	}

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonizedEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize: %w", err)
	}
	os.Exit(0)
	return nil
}

func run(f *flags) error {
	if f.daemonize {
		if err := daemonize(); err != nil {
			return err
		}
	}

	logger := newLogger(f)

	if f.pidfile != "" {
		if err := os.WriteFile(f.pidfile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			return err
		}
		defer os.Remove(f.pidfile)
	}

	storePath := f.deployPath + "/deployment.json"
	deployments, err := store.Read(storePath)
	if err != nil {
		return err
	}

	sessionKey := []byte(f.sessionKey)
	if len(sessionKey) == 0 {
		logger.Warn("no --session-key configured; using an ephemeral key, sessions will not survive a restart")
		sessionKey = websession.NewRandomKey()
	}

	checker, err := newChecker(f)
	if err != nil {
		return err
	}

	deps, err := newDependencies(f)
	if err != nil {
		return err
	}

	templates, err := webui.Load()
	if err != nil {
		return err
	}

	supervisor := task.NewSupervisor()
	controller := web.New(web.Config{
		MountPrefix:   f.mountPrefix,
		DeployDataDir: f.deployPath,
		StorePath:     storePath,
		Templates:     templates,
		Sessions:      websession.NewStore(sessionKey),
		Auth:          checker,
		Deployments:   deployments,
		Supervisor:    supervisor,
		Deps:          deps,
		Logger:        logger,
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-stop
		logger.WithField("signal", sig.String()).Info("graceful shutdown requested")
		supervisor.Shutdown()
		os.Exit(0)
	}()

	logger.WithFields(logrus.Fields{"addr": f.addr, "mount_prefix": f.mountPrefix}).Info("deployhubd listening")
	return controller.ListenAndServe(f.addr)
}

func newLogger(f *flags) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(f.logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if f.debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger
}

func newDependencies(f *flags) (task.Dependencies, error) {
	scmCtor, ok := scm.LookupClient("git")
	if !ok {
		return task.Dependencies{}, errUnregistered("scm", "git")
	}
	scmClient, err := scmCtor(nil)
	if err != nil {
		return task.Dependencies{}, err
	}

	ciCtor, ok := ci.LookupClient("jenkins")
	if !ok {
		return task.Dependencies{}, errUnregistered("ci", "jenkins")
	}
	ciClient, err := ciCtor(map[string]any{
		"base_url": f.jenkinsURL,
		"user":     f.jenkinsUser,
		"token":    f.jenkinsTok,
	})
	if err != nil {
		return task.Dependencies{}, err
	}

	dashboardCtor, ok := dashboard.LookupClient("bigboat")
	if !ok {
		return task.Dependencies{}, errUnregistered("dashboard", "bigboat")
	}
	dashboardClient, err := dashboardCtor(nil)
	if err != nil {
		return task.Dependencies{}, err
	}

	restarterCtor, ok := hostservice.LookupRestarter("systemctl")
	if !ok {
		return task.Dependencies{}, errUnregistered("hostservice", "systemctl")
	}
	restarter, err := restarterCtor(nil)
	if err != nil {
		return task.Dependencies{}, err
	}

	return task.Dependencies{
		SCM:        scmClient,
		CI:         ciClient,
		Dashboard:  dashboardClient,
		Restarter:  restarter,
		HTTPClient: http.DefaultClient,
	}, nil
}

func errUnregistered(pkg, name string) error {
	return fmt.Errorf("%s: no %q client registered", pkg, name)
}

func newChecker(f *flags) (auth.Checker, error) {
	if f.usersFile == "" {
		return auth.NewStaticChecker(f.deployPath + "/users.json")
	}
	return auth.NewStaticChecker(f.usersFile)
}

