// Package persist converts graph trees to and from plain records and stores
// those records as HCL.
//
// A record lists the nodes of a graph in insertion order with type name, id,
// uuid, caption, position and properties, followed by the connections. Ports
// of connections are addressed by index, since port ids are assigned anew
// when a node is instantiated. Group nodes carry their own nested record.
//
//	graph {
//	  input "double" {}
//	  node "NumberSource" {
//	    id   = 0
//	    uuid = "0b6f..."
//	    properties {
//	      value = 42
//	    }
//	  }
//	  connection {
//	    from = 0
//	    out  = 0
//	    to   = 1
//	    in   = 0
//	  }
//	}
package persist
