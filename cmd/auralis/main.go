package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"auralis/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(".env", "auralis.json")
	if err != nil {
		color.Red("config error: %v", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "master":
		masterCmd := flag.NewFlagSet("master", flag.ExitOnError)
		preset := masterCmd.String("preset", "adaptive", "mastering preset (adaptive|gentle|warm|bright|punchy)")
		intensity := masterCmd.Float64("intensity", 1.0, "dry/wet intensity in [0,1]")
		out := masterCmd.String("out", "", "output WAV path (defaults to <input>.mastered.wav)")
		masterCmd.Parse(os.Args[2:])
		if masterCmd.NArg() < 1 {
			fmt.Println("usage: auralis master [-preset adaptive] [-intensity 1.0] [-out path] <input.wav>")
			os.Exit(1)
		}
		runMaster(cfg, masterCmd.Arg(0), *out, *preset, *intensity)

	case "profile":
		profileCmd := flag.NewFlagSet("profile", flag.ExitOnError)
		jsonOut := profileCmd.Bool("json", false, "print the raw JSON content profile")
		profileCmd.Parse(os.Args[2:])
		if profileCmd.NArg() < 1 {
			fmt.Println("usage: auralis profile [-json] <input.wav>")
			os.Exit(1)
		}
		runProfile(cfg, profileCmd.Arg(0), *jsonOut)

	case "cache":
		if len(os.Args) < 3 || os.Args[2] != "warm" {
			fmt.Println("usage: auralis cache warm <dir>")
			os.Exit(1)
		}
		cacheCmd := flag.NewFlagSet("cache warm", flag.ExitOnError)
		cacheCmd.Parse(os.Args[3:])
		if cacheCmd.NArg() < 1 {
			fmt.Println("usage: auralis cache warm <dir>")
			os.Exit(1)
		}
		runCacheWarm(cfg, cacheCmd.Arg(0))

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: auralis <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  master  [-preset adaptive] [-intensity 1.0] [-out path] <input.wav>   master a track end to end")
	fmt.Println("  profile [-json] <input.wav>                                           print the fingerprint and applied target")
	fmt.Println("  cache warm <dir>                                                      pre-populate the fingerprint cache for a directory of tracks")
}
