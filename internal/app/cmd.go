package app

// Command はcaldashの起動モード。
type Command string

const (
	// CommandServe はAPIサーバー（認証とカレンダープロキシ）を起動する。引数省略時の既定。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを定期削除するワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はusers・sessionsのスキーマを最新化して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを叩いて終了する。
	// distrolessイメージのDocker HEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数が無い場合や未知のサブコマンドはserveとして扱い、2番目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// RequiresConfig は環境変数の設定とDB接続を必要とするかを返す。
// healthcheckはSERVER_PORTのみで動作する。
func (c Command) RequiresConfig() bool {
	return c != CommandHealthcheck
}
