// Package manifest загружает описания workflow из YAML и строит по ним
// объекты оркестратора.
//
// Манифест workflow:
//
//	name: Italian-Writers
//	tasks:
//	  - name: Svevo
//	    command: echo svevo > out.txt
//	  - name: Calvino
//	    type: checkpoint
//	    command: cat workflow:///Svevo/out.txt > calvino.txt
//	  - name: Eco
//	    type: remote
//	    host: node1
//	    user: dagon
//	    command: uname -a
//	    depends_on: [Svevo]
//
// Мета-манифест перечисляет workflow на месте или через include:
//
//	meta: nightly
//	workflows:
//	  - include: writers.yaml
//	  - name: report
//	    tasks:
//	      - name: collect
//	        command: cat workflow://Italian-Writers/Calvino/calvino.txt
package manifest
