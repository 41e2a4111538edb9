package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandGateway はクライアント向けゲートウェイ（BFF）として起動することを示す。
	CommandGateway Command = "gateway"
	// CommandService はカクテルサービス（カタログ・判定履歴API）として起動することを示す。
	CommandService Command = "service"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandGatewayを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandGateway
	}

	switch args[0] {
	case "gateway":
		return CommandGateway
	case "service":
		return CommandService
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandGateway
	}
}
