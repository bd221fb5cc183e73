package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
	"github.com/nottavi/forget/internal/services"
)

var sweepAccountID uint

// sweepCmd represents the sweep command group
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "手动清理",
	Long:  `绕过调度器，立即对指定账户执行一次删除。受相同的限速约束。`,
}

// sweepRunCmd runs one deletion pass for a single account
var sweepRunCmd = &cobra.Command{
	Use:   "run",
	Short: "立即对指定账户执行一次删除",
	Run: func(cmd *cobra.Command, args []string) {
		if sweepAccountID == 0 {
			fmt.Fprintln(os.Stderr, "错误: 必须通过 --account 指定账户 ID")
			os.Exit(1)
		}

		account, err := accountService.GetAccountByID(sweepAccountID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误: 无法获取账户: %v\n", err)
			os.Exit(1)
		}

		if !account.PolicyEnabled {
			fmt.Fprintf(os.Stderr, "错误: 账户 %d 的删除策略未启用\n", account.ID)
			os.Exit(1)
		}

		postService := services.NewPostService(db)
		logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
		instanceService := services.NewInstanceService(db, cfg.GetEncryptionKey())

		deleters := map[models.Service]provider.Deleter{
			models.ServiceMastodon: provider.NewMastodon(instanceService, cfg.BaseURL),
		}
		if cfg.TwitterConsumerKey != "" && cfg.TwitterConsumerSecret != "" {
			deleters[models.ServiceTwitter] = provider.NewTwitter(cfg.TwitterConsumerKey, cfg.TwitterConsumerSecret)
		}

		sweepService := services.NewSweepService(accountService, postService, logService,
			deleters, cfg.DeleteRatePerMinute, cfg.DeleteRatePerAccountMinute)

		fmt.Printf("正在对账户 %d (%s) 执行删除...\n", account.ID, account.ScreenName)

		result, err := sweepService.RunPass(context.Background(), account)
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误: 删除执行失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("已删除 %d 条帖子，失败 %d 条。\n", result.Deleted, result.Failures)
		if result.RateLimited {
			fmt.Printf("远端限速，剩余 %d 条未处理，稍后会由调度器继续。\n", result.Remaining)
		}
		if result.WentDormant {
			fmt.Println("凭证已失效，账户被标记为休眠。重新登录后恢复。")
		}
	},
}

func init() {
	sweepRunCmd.Flags().UintVar(&sweepAccountID, "account", 0, "账户 ID")
	sweepCmd.AddCommand(sweepRunCmd)
}
