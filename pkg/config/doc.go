// Package config loads publisher site configuration.
//
// A configuration directory holds a base file, publisher.yaml, and any
// number of site overlays under site/. Every site file is applied on top of
// the base and yields one publisher named after the file. An optional
// secure.yaml maps usernames to passwords and takes precedence over
// plaintext passwords in the other files.
//
//	conf/
//	  publisher.yaml
//	  secure.yaml
//	  site/
//	    review.yaml
//	    replica.yaml
package config
