package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/nottavi/forget/internal/api/middleware"
	"github.com/nottavi/forget/internal/config"
	"github.com/nottavi/forget/internal/services"
)

var (
	db             *gorm.DB
	cfg            *config.Config
	apiKeyManager  *middleware.APIKeyManager
	accountService *services.AccountService
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget 社交媒体帖子自动清理服务",
	Long: `Forget 会按照每个账户设置的保留策略，定期删除 Twitter 和
Mastodon 上的旧帖子。

该命令行工具提供以下功能：
  - 密钥管理：查看和重置 API 密钥
  - 账户管理：列出账户、停用策略、标记休眠
  - 手动清理：对单个账户立即执行一次删除

使用示例：
  forget key show                 # 显示当前 API 密钥
  forget key reset                # 重置 API 密钥
  forget account list             # 列出所有已关联账户
  forget account disable 3        # 停用账户 3 的删除策略
  forget account dormant 3        # 将账户 3 标记为休眠
  forget sweep run --account 3    # 立即对账户 3 执行一次删除`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, config *config.Config) {
	db = database
	cfg = config

	// Initialize API key manager
	var err error
	apiKeyManager, err = middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: 无法初始化 API 密钥管理器: %v\n", err)
		os.Exit(1)
	}

	accountService = services.NewAccountService(db, cfg.GetEncryptionKey())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(sweepCmd)
}
