package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"

	"github.com/e1732a364fed/vs_inspect/audit"
	"github.com/e1732a364fed/vs_inspect/config"
	"github.com/e1732a364fed/vs_inspect/serve"
	"github.com/e1732a364fed/vs_inspect/stat/metrics"
	"github.com/e1732a364fed/vs_inspect/utils"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

var (
	configFileName string
	startMProf     bool

	listenCloserList []io.Closer
)

const (
	defaultLogFile = "vs_inspect.log"
	defaultConfFn  = "inspect.toml"
)

func init() {
	flag.StringVar(&configFileName, "c", defaultConfFn, "config file name")
	flag.BoolVar(&startMProf, "mp", false, "memory pprof")

	flag.IntVar(&utils.LogLevel, "ll", utils.DefaultLL, "log level,0=debug, 1=info, 2=warning, 3=error, 4=fatal")
	flag.StringVar(&utils.LogOutFileName, "lf", defaultLogFile, "output file for log; If empty, no log file will be used.")
}

func cleanup() {
	for _, c := range listenCloserList {
		if c != nil {
			c.Close()
		}
	}
}

func main() {
	os.Exit(mainFunc())
}

func mainFunc() (result int) {
	defer func() {
		if r := recover(); r != nil {
			if ce := utils.CanLogErr("Captured panic!"); ce != nil {
				stackStr := string(debug.Stack())
				ce.Write(
					zap.Any("err:", r),
					zap.String("stacktrace", stackStr),
				)
				log.Println(stackStr)
			} else {
				log.Println("panic captured!", r, "\n", string(debug.Stack()))
			}
			result = -3
			cleanup()
		}
	}()

	utils.ParseFlags()

	if startMProf {
		//若不使用 NoShutdownHook, 则 我们ctrl+c退出时不会产生 pprof文件
		p := profile.Start(profile.MemProfile, profile.MemProfileRate(1), profile.NoShutdownHook)
		defer p.Stop()
	}

	conf, err := config.LoadTomlConfFile(configFileName)
	if err != nil {
		fmt.Println("can not load config file", configFileName, err)
		return -1
	}

	if appConf := conf.App; appConf != nil {
		if appConf.LogFile != "" && utils.GivenFlags["lf"] == nil {
			utils.LogOutFileName = appConf.LogFile
		}
		if appConf.LogLevel != nil && utils.GivenFlags["ll"] == nil {
			utils.LogLevel = *appConf.LogLevel
		}
	}
	utils.InitLog()

	quit := serve.NewQuitPolicy()
	detourStats := metrics.NewBackendStats()

	var auditHandle *audit.Handle
	if conf.Audit != nil && conf.Audit.DetourServer != "" {
		dc := audit.NewSmuxDetourClient(conf.Audit.DetourServer, detourStats)
		listenCloserList = append(listenCloserList, dc)
		auditHandle = audit.NewHandle(dc)

		emitter := &metrics.LogEmitter{
			Logger: utils.ZapLogger.Named("metrics"),
			Tags:   []zap.Field{zap.String("detour_server", conf.Audit.DetourServer)},
		}
		go metrics.RunEmitLoop(emitter, detourStats, conf.App.GetMetricsInterval(), quit.Done())
	}

	blockList, err := conf.Inspect.BlockList()
	if err != nil {
		if ce := utils.CanLogErr("invalid block list"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return -1
	}

	env := &inspectEnv{
		quit:      quit,
		audit:     auditHandle,
		blockList: blockList,
	}
	if ic := conf.Inspect; ic != nil {
		env.websocketPolicy = ic.Websocket
		env.smtpPolicy = ic.Smtp
		env.depth = ic.Depth
	}

	running := 0
	for _, sc := range conf.Servers {
		c, err := startServer(env, conf, sc)
		if err != nil {
			if ce := utils.CanLogErr("can not start server"); ce != nil {
				ce.Write(zap.String("name", sc.Name()), zap.Error(err))
			}
			continue
		}
		listenCloserList = append(listenCloserList, c)
		running++
	}

	if running == 0 {
		log.Println("No server running. Exit now.")
		return -1
	}

	<-utils.GetSystemKillChan()

	if ce := utils.CanLogInfo("Program got close signal."); ce != nil {
		ce.Write()
	}
	quit.ForceQuit()
	cleanup()
	return 0
}
