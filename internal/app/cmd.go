package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はトークン台帳の定期クリーンアップを行うワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandCleanup はクリーンアップを1回だけ実行して終了することを示す。
	// 外部のスケジューラ（cronなど）から起動する場合に使う。
	CommandCleanup Command = "cleanup"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandCleanup, CommandMigrate, CommandHealthcheck, CommandServe:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// MigrateAction はmigrateサブコマンドの操作を表す。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// ParseMigrateArgs はmigrate以降の引数を解析する。
//
//	migrate            全マイグレーションを適用
//	migrate down [N]   N件（既定1件）巻き戻す
//	migrate version    現在のバージョンを表示
func ParseMigrateArgs(args []string) (MigrateAction, int, error) {
	if len(args) == 0 {
		return MigrateUp, 0, nil
	}

	switch MigrateAction(args[0]) {
	case MigrateUp:
		return MigrateUp, 0, nil
	case MigrateVersion:
		return MigrateVersion, 0, nil
	case MigrateDown:
		if len(args) < 2 {
			return MigrateDown, 1, nil
		}
		steps, err := strconv.Atoi(args[1])
		if err != nil || steps <= 0 {
			return "", 0, fmt.Errorf("invalid rollback steps: %q", args[1])
		}
		return MigrateDown, steps, nil
	default:
		return "", 0, fmt.Errorf("unknown migrate action: %q", args[0])
	}
}
