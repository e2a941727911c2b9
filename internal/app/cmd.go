package app

import (
	"errors"
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はBFFサーバー（API・ページ配信）を起動する。
	CommandServe Command = "serve"
	// CommandWorker はページ閲覧数のリセットジョブを実行する。
	CommandWorker Command = "worker"
	// CommandMigrate はバックエンドストアのスキーマを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// distrolessイメージにはcurlがないためバイナリ自身で行う。
	CommandHealthcheck Command = "healthcheck"
)

// ErrUnknownCommand はサポート外のサブコマンドが指定されたことを示す。
var ErrUnknownCommand = errors.New("unknown command")

// Commands はサポートするサブコマンドの一覧。
var Commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return CommandServe, nil
	}

	name := strings.ToLower(strings.TrimSpace(args[0]))
	for _, c := range Commands {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q (available: %s)", ErrUnknownCommand, args[0], usage())
}

func usage() string {
	names := make([]string, len(Commands))
	for i, c := range Commands {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
