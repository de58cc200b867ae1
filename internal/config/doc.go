// Package config собирает конфигурацию сервисов из переменных окружения.
//
// Все переменные необязательны: значения по умолчанию подходят для
// локального docker-compose. RUN_MODE (DEVELOPMENT или STAGING) выбирает
// имена ресурсов окружения: bucket data lake, регион и stack по умолчанию.
//
// Stack'и data store описываются YAML-файлом STACKS_FILE и регистрируются
// в каталоге при старте API.
package config
