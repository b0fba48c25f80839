// Package cli implements the kqlstore command line interface using cobra.
//
// Commands are package level variables registered on rootCmd from init
// functions. They reach the core only through the ports assembled in App.
package cli
