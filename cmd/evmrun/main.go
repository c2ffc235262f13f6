// Copyright 2024 The evmkit Authors
// This file is part of evmkit.
//
// evmkit is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// evmkit is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with evmkit. If not, see <http://www.gnu.org/licenses/>.

// Command evmrun executes a single piece of bytecode against a calldata
// buffer and an optional world snapshot, printing the result surface
// described by this engine's external interface.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/evmkit/evmkit/common"
	"github.com/evmkit/evmkit/core/state"
	"github.com/evmkit/evmkit/core/vm"
)

var (
	codeFlag = cli.StringFlag{Name: "code", Usage: "bytecode as a hex string (0x-prefixed)"}
	codeFile = cli.StringFlag{Name: "codefile", Usage: "path to a file containing bytecode (raw or hex)"}
	calldata = cli.StringFlag{Name: "calldata", Usage: "calldata as a hex string"}
	valueF   = cli.StringFlag{Name: "value", Usage: "call value, decimal or 0x-hex", Value: "0"}
	gasPrice = cli.StringFlag{Name: "gasprice", Usage: "gas price, decimal or 0x-hex", Value: "0"}
	gasLimit = cli.Uint64Flag{Name: "gas", Usage: "gas limit", Value: 10_000_000}
	caller   = cli.StringFlag{Name: "caller", Usage: "caller address (hex)"}
	address  = cli.StringFlag{Name: "address", Usage: "executing contract's own address (hex)"}
	origin   = cli.StringFlag{Name: "origin", Usage: "transaction origin address (hex)"}
	worldIn  = cli.StringFlag{Name: "world", Usage: "path to a world JSON snapshot to load before running"}
	worldOut = cli.StringFlag{Name: "world-out", Usage: "path to write the resulting world JSON snapshot"}
	statedb  = cli.StringFlag{Name: "statedb", Usage: "LevelDB directory to load/persist world state from, instead of --world"}
	maxSteps = cli.Uint64Flag{Name: "max-steps", Usage: "abort after this many instructions (0 = unbounded)"}
	jsonOut  = cli.BoolFlag{Name: "json", Usage: "print status, pc, gas, stack, memory, return data and refund as JSON instead of a summary"}
	traceOpt = cli.BoolFlag{Name: "trace", Usage: "log one debug record per executed instruction"}
)

func main() {
	app := cli.NewApp()
	app.Name = "evmrun"
	app.Usage = "run a single bytecode program against calldata and an optional world snapshot"
	app.Flags = []cli.Flag{
		codeFlag, codeFile, calldata, valueF, gasPrice, gasLimit,
		caller, address, origin, worldIn, worldOut, statedb, maxSteps, jsonOut, traceOpt,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps this engine's error taxonomy onto the 0/1/2 exit codes
// described by spec.md §6/§7: 0 success, 1 a reverted/failed execution, 2 a
// usage or setup error (bad flags, unreadable files, malformed JSON).
func exitCodeFor(err error) int {
	switch err.(type) {
	case usageError:
		return 2
	default:
		return 1
	}
}

type usageError struct{ error }

func run(c *cli.Context) error {
	code, err := loadCode(c)
	if err != nil {
		return usageError{err}
	}
	input, err := hexFlagOrEmpty(c.String(calldata.Name))
	if err != nil {
		return usageError{fmt.Errorf("parsing --calldata: %w", err)}
	}
	value, err := parseUint256(c.String(valueF.Name))
	if err != nil {
		return usageError{fmt.Errorf("parsing --value: %w", err)}
	}
	gasPriceVal, err := parseUint256(c.String(gasPrice.Name))
	if err != nil {
		return usageError{fmt.Errorf("parsing --gasprice: %w", err)}
	}

	var callerAddr, addr, originAddr common.Address
	if s := c.String(caller.Name); s != "" {
		if callerAddr, err = common.HexToAddress(s); err != nil {
			return usageError{err}
		}
	}
	if s := c.String(address.Name); s != "" {
		if addr, err = common.HexToAddress(s); err != nil {
			return usageError{err}
		}
	}
	if s := c.String(origin.Name); s != "" {
		originAddr, err = common.HexToAddress(s)
		if err != nil {
			return usageError{err}
		}
	} else {
		originAddr = callerAddr
	}

	world, ldb, err := loadWorld(c)
	if err != nil {
		return usageError{err}
	}
	if ldb != nil {
		defer ldb.Close()
	}

	cfg := vm.Config{
		Code:     code,
		Calldata: input,
		Address:  addr,
		Caller:   callerAddr,
		Origin:   originAddr,
		Value:    value,
		GasPrice: gasPriceVal,
		GasLimit: c.Uint64(gasLimit.Name),
		World:    world,
		MaxSteps: c.Uint64(maxSteps.Name),
	}
	if c.Bool(traceOpt.Name) {
		logger := logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		cfg.Logger = logger
	}

	frame, runErr := vm.Execute(cfg)

	if err := saveWorldIfRequested(c, frame, ldb); err != nil {
		return err
	}

	printResult(c, frame, runErr)

	if runErr != nil {
		return runErr
	}
	if frame.Halted() == vm.Revert {
		return fmt.Errorf("%w", vm.ErrExecutionReverted)
	}
	return nil
}

func loadCode(c *cli.Context) ([]byte, error) {
	if s := c.String(codeFlag.Name); s != "" {
		return common.DecodeHex(s)
	}
	if path := c.String(codeFile.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return common.DecodeHex(string(data))
	}
	return nil, fmt.Errorf("one of --code or --codefile is required")
}

func hexFlagOrEmpty(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return common.DecodeHex(s)
}

func parseUint256(s string) (uint256.Int, error) {
	var v uint256.Int
	if s == "" || s == "0" {
		return v, nil
	}
	if err := v.SetFromDecimal(s); err == nil {
		return v, nil
	}
	b, err := common.DecodeHex(s)
	if err != nil {
		return v, fmt.Errorf("%q is neither decimal nor hex", s)
	}
	v.SetBytes(b)
	return v, nil
}

// worldRecord is the JSON wire format for one account in a --world snapshot,
// per spec.md §6.
type worldRecord struct {
	Nonce   uint64            `json:"nonce"`
	Balance string            `json:"balance"`
	Code    string            `json:"code"`
	Storage map[string]string `json:"storage"`
}

func loadWorld(c *cli.Context) (*state.World, *state.LevelDBWorld, error) {
	if dir := c.String(statedb.Name); dir != "" {
		ldb, err := state.OpenLevelDBWorld(dir)
		if err != nil {
			return nil, nil, err
		}
		w, err := ldb.Load()
		if err != nil {
			ldb.Close()
			return nil, nil, err
		}
		return w, ldb, nil
	}
	path := c.String(worldIn.Name)
	if path == "" {
		return state.New(), nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var records map[string]worldRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("parsing world JSON: %w", err)
	}
	w := state.New()
	for addrHex, rec := range records {
		addr, err := common.HexToAddress(addrHex)
		if err != nil {
			return nil, nil, err
		}
		w.SetNonce(addr, rec.Nonce)
		bal, err := parseUint256(rec.Balance)
		if err != nil {
			return nil, nil, err
		}
		w.AddBalance(addr, &bal)
		if rec.Code != "" {
			code, err := common.DecodeHex(rec.Code)
			if err != nil {
				return nil, nil, err
			}
			w.SetCode(addr, code)
		}
		for k, v := range rec.Storage {
			key, err := parseUint256(k)
			if err != nil {
				return nil, nil, err
			}
			val, err := parseUint256(v)
			if err != nil {
				return nil, nil, err
			}
			w.SetState(addr, key, val)
		}
	}
	return w, nil, nil
}

func saveWorldIfRequested(c *cli.Context, frame *vm.Frame, ldb *state.LevelDBWorld) error {
	if ldb != nil {
		return ldb.Save(frame.World())
	}
	path := c.String(worldOut.Name)
	if path == "" {
		return nil
	}
	records := make(map[string]worldRecord)
	w := frame.World()
	for _, addr := range w.Addresses() {
		bal := w.GetBalance(addr)
		storage := make(map[string]string)
		for k, v := range w.Get(addr).Storage {
			kk := k
			storage[common.EncodeHex(kk.Bytes32()[:])] = common.EncodeHex(v.Bytes32()[:])
		}
		records[addr.Hex()] = worldRecord{
			Nonce:   w.GetNonce(addr),
			Balance: bal.Hex(),
			Code:    common.EncodeHex(w.GetCode(addr)),
			Storage: storage,
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func printResult(c *cli.Context, frame *vm.Frame, runErr error) {
	if c.Bool(jsonOut.Name) {
		printJSON(frame, runErr)
		return
	}
	status := frame.Halted().String()
	if runErr != nil {
		status = runErr.Error()
	}
	fmt.Printf("status:      %s\n", status)
	fmt.Printf("pc:          %d\n", frame.PC())
	fmt.Printf("gas left:    %d\n", frame.Gas())
	fmt.Printf("return data: %s\n", common.EncodeHex(frame.ReturnData()))
	fmt.Printf("logs:        %d\n", len(frame.Logs()))
	fmt.Printf("refund:      %d\n", frame.Refund())
}

type jsonResult struct {
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	PC         uint64   `json:"pc"`
	Gas        uint64   `json:"gas"`
	Stack      []string `json:"stack"`
	Memory     string   `json:"memory"`
	ReturnData string   `json:"returnData"`
	Refund     uint64   `json:"refund"`
}

func printJSON(frame *vm.Frame, runErr error) {
	stack := frame.Stack()
	stackHex := make([]string, len(stack))
	for i, v := range stack {
		stackHex[i] = v.Hex()
	}
	res := jsonResult{
		Status:     frame.Halted().String(),
		PC:         frame.PC(),
		Gas:        frame.Gas(),
		Stack:      stackHex,
		Memory:     common.EncodeHex(frame.Memory()),
		ReturnData: common.EncodeHex(frame.ReturnData()),
		Refund:     frame.Refund(),
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	data, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(data))
}
