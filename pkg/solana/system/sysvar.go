package system

import (
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

// https://explorer.solana.com/address/11111111111111111111111111111111
var SystemAccount = solana.MustBase58Decode("11111111111111111111111111111111")

// RentSysVar points to the system variable "Rent"
//
// Source: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/sysvar/rent.rs#L11
var RentSysVar = solana.MustBase58Decode("SysvarRent111111111111111111111111111111111")

// SysvarOwner is the program that owns every sysvar account.
var SysvarOwner = solana.MustBase58Decode("Sysvar1111111111111111111111111111111111111")

// NativeLoader owns the accounts of programs built into the runtime.
var NativeLoader = solana.MustBase58Decode("NativeLoader1111111111111111111111111111111")
