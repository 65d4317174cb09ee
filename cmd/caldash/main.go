// Command caldash はカレンダーダッシュボードのバックエンドを起動する。
//
//	caldash [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	// distrolessイメージにはタイムゾーンDBが無いため埋め込む
	_ "time/tzdata"

	"github.com/hitoshi/caldash/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "caldash: %v\n", err)
		os.Exit(1)
	}
}
