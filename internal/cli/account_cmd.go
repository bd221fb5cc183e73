package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// accountCmd represents the account command group
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "账户管理",
	Long:  `管理已关联的社交账户，包括列出账户、停用删除策略和标记休眠。`,
}

// accountListCmd lists all linked accounts
var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有已关联账户",
	Run: func(cmd *cobra.Command, args []string) {
		accounts, err := accountService.ListAccounts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误: 无法获取账户列表: %v\n", err)
			os.Exit(1)
		}

		if len(accounts) == 0 {
			fmt.Println("没有已关联的账户。")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\t服务\t用户名\t实例\t策略\t休眠\t上次删除")
		for _, a := range accounts {
			policy := "停用"
			if a.PolicyEnabled {
				policy = "启用"
			}
			dormant := "-"
			if a.Dormant {
				dormant = "是"
			}
			lastDelete := "-"
			if a.LastDelete != nil {
				lastDelete = a.LastDelete.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.Service, a.ScreenName, a.InstanceDomain, policy, dormant, lastDelete)
		}
		w.Flush()
	},
}

// accountDisableCmd turns an account's deletion policy off
var accountDisableCmd = &cobra.Command{
	Use:   "disable <account-id>",
	Short: "停用账户的删除策略",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseAccountID(args[0])

		account, err := accountService.Disable(uint(id))
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误: 停用失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("账户 %d (%s) 的删除策略已停用。\n", account.ID, account.ScreenName)
	},
}

// accountDormantCmd marks an account dormant so the scheduler skips it
var accountDormantCmd = &cobra.Command{
	Use:   "dormant <account-id>",
	Short: "将账户标记为休眠",
	Long:  `休眠账户不参与定时清理。账户重新登录后自动解除休眠。`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseAccountID(args[0])

		if err := accountService.MarkDormant(uint(id)); err != nil {
			fmt.Fprintf(os.Stderr, "错误: 标记休眠失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("账户 %d 已标记为休眠。\n", id)
	},
}

func parseAccountID(arg string) uint64 {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: 无效的账户 ID: %s\n", arg)
		os.Exit(1)
	}
	return id
}

func init() {
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountDisableCmd)
	accountCmd.AddCommand(accountDormantCmd)
}
