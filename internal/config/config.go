package config

import (
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

/*
адрес и порт запуска сервиса: переменная окружения RUN_ADDRESS или флаг -a, порт можно переопределить через PORT;
каталог с заказами: DATA_DIR или флаг -s;
адрес подключения к базе данных (включает PostgreSQL вместо файлов): DATABASE_URI или флаг -d;
адрес брокера для уведомлений о решениях: AMQP_URL или флаг -q.
*/

const (
	defaultRunAddress = "0.0.0.0:3000"
	defaultDataDir    = "./data"
	secretSize        = 32
)

type ServerConfig struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	Port            string        `env:"PORT"`
	DataDir         string        `env:"DATA_DIR"`
	DatabaseDSN     string        `env:"DATABASE_URI"`
	AdminUser       string        `env:"ADMIN_USER" envDefault:"admin"`
	AdminPass       string        `env:"ADMIN_PASS" envDefault:"1234"`
	SecretKey       string        `env:"SECRET"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	AMQPURL         string        `env:"AMQP_URL"`
	AMQPExchange    string        `env:"AMQP_EXCHANGE" envDefault:"orders"`
	BacklogSchedule string        `env:"BACKLOG_SCHEDULE" envDefault:"@every 5m"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`

	Secret []byte `env:"-"`
}

// NewConfig reads an optional .env file, then the environment, then args.
// Environment values win over flags.
func NewConfig(args []string) (*ServerConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	var params ServerConfig
	err := env.Parse(&params)
	if err != nil {
		return nil, err
	}

	var commandLineParams ServerConfig

	flags := flag.NewFlagSet("orderdesk", flag.ContinueOnError)
	flags.StringVar(&commandLineParams.RunAddress, "a", defaultRunAddress, "Base address to listen on")
	flags.StringVar(&commandLineParams.DataDir, "s", defaultDataDir, "Directory for order records")
	flags.StringVar(&commandLineParams.DatabaseDSN, "d", "", "Database DSN, enables PostgreSQL storage")
	flags.StringVar(&commandLineParams.AMQPURL, "q", "", "AMQP broker URL for decision notifications")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if params.RunAddress == "" {
		params.RunAddress = commandLineParams.RunAddress
	}
	if params.DataDir == "" {
		params.DataDir = commandLineParams.DataDir
	}
	if params.DatabaseDSN == "" {
		params.DatabaseDSN = commandLineParams.DatabaseDSN
	}
	if params.AMQPURL == "" {
		params.AMQPURL = commandLineParams.AMQPURL
	}

	if params.Port != "" {
		host, _, err := net.SplitHostPort(params.RunAddress)
		if err != nil {
			return nil, fmt.Errorf("bad run address %q: %w", params.RunAddress, err)
		}
		params.RunAddress = net.JoinHostPort(host, params.Port)
	}

	if params.SecretKey != "" {
		params.Secret = []byte(params.SecretKey)
	} else {
		params.Secret = make([]byte, secretSize)
		if _, err := rand.Read(params.Secret); err != nil {
			return nil, err
		}
	}

	if params.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", params.SessionTTL)
	}

	return &params, nil
}
