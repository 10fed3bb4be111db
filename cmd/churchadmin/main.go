// churchadmin は教会のイベント管理画面向けのBFFサーバー。
//
// サブコマンド:
//
//	serve        BFFサーバーを起動する（デフォルト）
//	worker       古いクライアント状態を定期的に削除する
//	migrate      データベースマイグレーションを適用する
//	healthcheck  /health を確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/churchadmin/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
