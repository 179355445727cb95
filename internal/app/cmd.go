package app

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand はサポートしていないサブコマンドが指定された場合に返される。
var ErrUnknownCommand = errors.New("unknown command")

// Command はchatlineの起動モードを表す。
type Command string

const (
	// CommandServe はWebSocketとHTTP APIを提供するチャットサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションと古いメッセージを削除するワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は/healthを叩いて終了コードで結果を返す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示する。
	CommandHelp Command = "help"
)

// commands はサポートするサブコマンド。Usageの表示順を兼ねる。
var commands = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "start the chat server (default)"},
	{CommandWorker, "purge expired sessions and old messages periodically"},
	{CommandMigrate, "apply database migrations"},
	{CommandHealthcheck, "probe GET /health on SERVER_PORT"},
	{CommandHelp, "show this help"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。2つ目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	switch name := args[0]; name {
	case "-h", "--help":
		return CommandHelp, nil
	default:
		for _, c := range commands {
			if string(c.cmd) == name {
				return c.cmd, nil
			}
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: chatline [command]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.summary)
	}
	return b.String()
}
