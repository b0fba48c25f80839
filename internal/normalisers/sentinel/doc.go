// Package sentinel parses Azure Sentinel analytic rule and hunting query
// YAML files into query records. The rule name, description, severity,
// tactics and techniques become attributes; relevantTechniques is stored
// as "techniques".
package sentinel
