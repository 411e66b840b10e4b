package main

import (
	"context"
	"fmt"

	"github.com/erain9/pairbook/pkg/backend/memory"
	"github.com/erain9/pairbook/pkg/core"
	"github.com/erain9/pairbook/pkg/custody"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	weth      = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	authority = common.HexToAddress("0x00000000000000000000000000000000000A0001")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

func main() {
	ctx := context.Background()

	// Initialize order book with in-memory backends and custody
	ledger := custody.NewLedger(weth)
	book := core.NewOrderBook(memory.NewPriceIndex(), memory.NewOrderStore(), ledger)
	err := book.Initialize(ctx, 1,
		core.Asset{Address: weth, Decimals: 18},
		core.Asset{Address: usdc, Decimals: 6},
		authority)
	if err != nil {
		panic(err)
	}
	caller := core.NewCaller(authority)

	// Alice sells 2 WETH at 2000 USDC
	askPrice := uint64(2000_00000000)
	askDeposit := uint256.MustFromDecimal("2000000000000000000")
	ledger.Fund(weth, askDeposit)
	askID, err := book.PlaceAsk(ctx, caller, alice, askPrice, askDeposit)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Placed ask %d: 2 WETH at 2000\n", askID)

	// Bob bids 1000 USDC at 1990
	bidDeposit := uint256.NewInt(1000_000000)
	ledger.Fund(usdc, bidDeposit)
	bidID, err := book.PlaceBid(ctx, caller, bob, 1990_00000000, bidDeposit)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Placed bid %d: 1000 USDC at 1990\n", bidID)
	fmt.Print(book.String())

	// Bob takes half of the ask by paying 2000 USDC
	payment := uint256.NewInt(2000_000000)
	ledger.Fund(usdc, payment)
	owner, err := book.Execute(ctx, caller, core.Ask, askID, bob, payment, false)
	if err != nil {
		panic(err)
	}
	order, _ := book.Order(core.Ask, askID)
	fmt.Printf("Partial fill paid %s to %s, ask deposit left %s\n", payment.Dec(), owner.Hex(), order.Deposit.Dec())

	// Pop the rest of the ask if 3000 USDC covers it, then settle
	id, required, filled, err := book.TryPop(ctx, caller, core.Ask, askPrice, uint256.NewInt(3000_000000))
	if err != nil {
		panic(err)
	}
	fmt.Printf("TryPop ask %d: required=%s filled=%v\n", id, required.Dec(), filled)
	if filled {
		ledger.Fund(usdc, required)
		if _, err := book.Execute(ctx, caller, core.Ask, id, bob, required, true); err != nil {
			panic(err)
		}
		if err := book.SetLastTradedPrice(ctx, caller, askPrice); err != nil {
			panic(err)
		}
	}

	// Bob cancels his bid and gets the USDC back
	if err := book.Cancel(ctx, caller, core.Bid, bidID, bob); err != nil {
		panic(err)
	}

	// Summary
	fmt.Println("\nSummary:")
	fmt.Printf("- Alice USDC: %s\n", ledger.Balance(usdc, alice).Dec())
	fmt.Printf("- Bob ETH:    %s (WETH is unwrapped on payout)\n", ledger.NativeBalance(bob).Dec())
	fmt.Printf("- Bob USDC:   %s\n", ledger.Balance(usdc, bob).Dec())
	fmt.Printf("- Last traded price: %d\n", book.LastTradedPrice())
	fmt.Printf("- Best ask: %d, best bid: %d\n", book.BestPrice(core.Ask), book.BestPrice(core.Bid))
}
