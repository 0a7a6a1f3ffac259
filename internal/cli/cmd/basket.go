package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/basket"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/output"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
)

var (
	flagShop     string
	flagAmount   float64
	flagLink     string
	flagNote     string
	flagLocation string
	flagCurrency string
	flagGuest    bool
	flagForce    bool
	flagUndo     bool
)

var basketCmd = &cobra.Command{
	Use:   "basket",
	Short: "Create and manage your baskets",
}

var basketCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a basket to the open pool for a shop",
	Long: `Add a basket to the open pool for a shop. When the pool reaches the shop's
minimum, a group chat is opened for everyone in it.

  shelivery basket create --shop <id> --amount 45 --link https://shop/cart/123
  shelivery basket create --shop <id> --amount 25.5 --guest     Save for after login`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		accessor, err := newAccessor()
		if err != nil {
			return err
		}

		draft := basket.Draft{
			ShopID:     flagShop,
			Amount:     flagAmount,
			Link:       flagLink,
			Note:       flagNote,
			LocationID: flagLocation,
			Currency:   flagCurrency,
		}

		if flagGuest || !cfg.HasToken() {
			if err := accessor.SaveDraft(draft); err != nil {
				return err
			}
			fmt.Println("Basket saved. It will be submitted when you run \"shelivery login\".")
			return nil
		}

		if err := requireProfile(ctx); err != nil {
			return err
		}
		created, err := accessor.Create(ctx, draft.Input())
		if err != nil {
			return fmt.Errorf("creating basket: %w", err)
		}

		if flagJSON {
			output.JSON(created.Result)
			return nil
		}
		fmt.Printf("Basket %s added to pool %s\n", created.Result.BasketID, created.Result.PoolID)
		if created.Result.ChatroomID != nil {
			fmt.Printf("The pool is full! Chat: shelivery chat show %s\n", *created.Result.ChatroomID)
		} else {
			fmt.Printf("Track it: shelivery pool show %s\n", created.Result.PoolID)
		}
		return nil
	},
}

var basketListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show your active and resolved baskets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		accessor, err := newAccessor()
		if err != nil {
			return err
		}
		active, resolved, err := accessor.Dashboard(ctx)
		if err != nil {
			return fmt.Errorf("listing baskets: %w", err)
		}

		if flagJSON {
			output.JSON(map[string]interface{}{"active": active, "resolved": resolved})
			return nil
		}
		output.BasketTable("Active", active)
		fmt.Println()
		output.BasketTable("Resolved", resolved)
		return nil
	},
}

var basketRmCmd = &cobra.Command{
	Use:   "rm <basket-id>",
	Short: "Withdraw a basket that is still waiting in a pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}

		if !flagForce {
			fmt.Printf("Withdraw basket %s from its pool? [y/N] ", args[0])
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			answer = strings.TrimSpace(strings.ToLower(answer))
			if answer != "y" && answer != "yes" {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		if err := apiClient.DeleteBasket(ctx, args[0]); err != nil {
			return fmt.Errorf("deleting basket: %w", err)
		}
		fmt.Printf("Deleted basket %s\n", args[0])
		return nil
	},
}

var basketReadyCmd = &cobra.Command{
	Use:   "ready <basket-id>",
	Short: "Mark your basket ready to order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		b, err := apiClient.SetBasketReady(ctx, args[0], !flagUndo)
		if err != nil {
			return fmt.Errorf("updating basket: %w", err)
		}
		if flagJSON {
			output.JSON(b)
			return nil
		}
		fmt.Printf("Basket %s ready: %v\n", b.ID, b.IsReady)
		return nil
	},
}

var basketReceivedCmd = &cobra.Command{
	Use:   "received <basket-id>",
	Short: "Confirm you received your part of the order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		b, err := apiClient.SetBasketDelivered(ctx, args[0], !flagUndo)
		if err != nil {
			return fmt.Errorf("updating basket: %w", err)
		}
		if flagJSON {
			output.JSON(b)
			return nil
		}
		fmt.Printf("Basket %s delivery confirmed: %v\n", b.ID, b.IsDeliveredByUser != nil && *b.IsDeliveredByUser)
		return nil
	},
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Inspect pools",
}

var poolShowCmd = &cobra.Command{
	Use:   "show <pool-id>",
	Short: "Show how close a pool is to its minimum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		accessor, err := newAccessor()
		if err != nil {
			return err
		}
		pool, progress, err := accessor.PoolProgress(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetching pool: %w", err)
		}
		if flagJSON {
			output.JSON(map[string]interface{}{"pool": pool, "progress": progress})
			return nil
		}
		output.PoolDetail(*pool, progress)
		return nil
	},
}

var shopsCmd = &cobra.Command{
	Use:   "shops",
	Short: "List shops you can pool orders for",
	RunE: func(cmd *cobra.Command, args []string) error {
		shops, err := apiClient.ListShops(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing shops: %w", err)
		}
		if flagJSON {
			output.JSON(shops)
			return nil
		}
		for _, s := range shops {
			fmt.Printf("%s  %s (minimum %s CHF)\n", s.ID, s.Name, lifecycle.FormatCHF(s.MinAmount))
		}
		return nil
	},
}

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List dormitories and pickup locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		locations, err := apiClient.ListLocations(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing locations: %w", err)
		}
		if flagJSON {
			output.JSON(locations)
			return nil
		}
		for _, l := range locations {
			fmt.Printf("%s  %s (%s)\n", l.ID, l.Name, l.Type)
		}
		return nil
	},
}

func init() {
	basketCreateCmd.Flags().StringVar(&flagShop, "shop", "", "Shop ID")
	basketCreateCmd.Flags().Float64Var(&flagAmount, "amount", 0, "Basket amount in CHF")
	basketCreateCmd.Flags().StringVar(&flagLink, "link", "", "Link to your cart")
	basketCreateCmd.Flags().StringVar(&flagNote, "note", "", "Note for the group")
	basketCreateCmd.Flags().StringVar(&flagLocation, "location", "", "Delivery location ID")
	basketCreateCmd.Flags().StringVar(&flagCurrency, "currency", "CHF", "Currency of the amount")
	basketCreateCmd.Flags().BoolVar(&flagGuest, "guest", false, "Save the basket locally and submit it after login")
	basketRmCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "Skip confirmation prompt")
	basketReadyCmd.Flags().BoolVar(&flagUndo, "undo", false, "Clear the flag instead of setting it")
	basketReceivedCmd.Flags().BoolVar(&flagUndo, "undo", false, "Clear the flag instead of setting it")

	basketCmd.AddCommand(basketCreateCmd, basketListCmd, basketRmCmd, basketReadyCmd, basketReceivedCmd)
	poolCmd.AddCommand(poolShowCmd)
	rootCmd.AddCommand(basketCmd, poolCmd, shopsCmd, locationsCmd)
}
