// config предоставляет структуру конфигурации клиента и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация клиента.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	API      APIConfig     `yaml:"api"`
	Tokens   TokensConfig  `yaml:"tokens"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// APIConfig — адрес бэкенда edugrader.
type APIConfig struct {
	BaseURL string `yaml:"base_url" env:"API_BASE_URL" env-default:"http://localhost:8000/api/v1"`
}

// TokensConfig — расположение файла с сохранённой парой токенов.
// Пустой Path означает стандартный путь в пользовательской
// конфигурационной директории (см. tokenstore.DefaultPath).
type TokensConfig struct {
	Path string `yaml:"path" env:"TOKENS_PATH" env-default:""`
}

// TimeoutConfig — таймауты внешних вызовов клиента.
//
// Request покрывает обычные запросы через шлюз и refresh;
// Login — логин/регистрацию; Logout ограничивает best-effort
// отзыв токена, чтобы выход не зависал на недоступном бэкенде.
type TimeoutConfig struct {
	Request time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"15s"`
	Login   time.Duration `yaml:"login" env:"LOGIN_TIMEOUT" env-default:"10s"`
	Logout  time.Duration `yaml:"logout" env:"LOGOUT_TIMEOUT" env-default:"3s"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env config: %w", err)
	}

	return &cfg, nil
}
