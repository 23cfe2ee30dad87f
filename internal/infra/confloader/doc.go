// Package confloader loads RailState configuration.
//
// Sources, highest priority first:
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (RAILSTATE_*, "__" separates sections)
//  3. YAML configuration file
//  4. config.Default()
//
// Watcher reports changes of the configuration file so that a running
// daemon can apply the few settings that are reloadable.
package confloader
