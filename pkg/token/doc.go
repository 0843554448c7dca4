// Package token generates and compares the bearer tokens used by SwarmCP.
//
// Node tokens are random, keyed by node identity and embedded in the agent
// install command of bring-your-own nodes:
//
//	gen := token.NewGenerator(secret)
//	tok, err := gen.Generate(nodeID)
//	if err != nil {
//	    return err
//	}
//
// Tokens presented by clients are compared in constant time:
//
//	if !token.Equal(provided, configured) {
//	    // reject
//	}
package token
